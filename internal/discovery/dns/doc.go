// Package dns 解析 /dnsaddr 引导地址
//
// /dnsaddr/<域名> 通过 TXT 记录 _dnsaddr.<域名> 展开，每条记录的格式为
// dnsaddr=<multiaddr>。记录本身也可以是 /dnsaddr/<域名>，按 MaxDepth 递归解析。
// 查询结果在 CacheTTL 内缓存。
package dns

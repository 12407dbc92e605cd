// Package bootstrap 管理引导节点
//
// 引导来源：
//   - 静态 multiaddr 列表，/dnsaddr/<域名> 经 DNS TXT 展开
//   - HTTP URL，GET 返回 JSON 字符串数组，每项为一个 multiaddr
//
// Run 启动后立即拨号所有引导地址，之后周期检查：未连接的地址按指数退避
// 重试（1s 起，上限 MaxBackoff，默认 60s），已连接的地址跳过。
// 来源在 RefreshInterval 后重新解析，解析失败同样退避。
package bootstrap

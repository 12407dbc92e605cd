// Package types 定义 Subfield 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 subfield 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - vbytes.go  - V96, V256, V512 版本化定长标识；VBytes 版本化变长字节
//   - key.go     - Field, CompleteKey, PartialKey, RoutingKey 与哈希组合
//   - peer.go    - PeerInfo 节点地址信息
//   - errors.go  - 全部错误分类
//
// # 字符串编码
//
// 版本化标识的外部表示为小写 RFC 4648 base32（无填充），
// 编码内容为 payload || version（小端 4 字节）。解析时大小写不敏感。
//
// # 距离度量
//
// 两个 V256 之间的距离为 payload 异或后的前导零位数，相等时为 256。
package types

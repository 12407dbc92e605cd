// Package transport 定义 Subfield 的底层传输接口
//
// 传输只负责按 multiaddr 拨号与监听，返回原始字节流连接；
// 多路复用与加密由上层（muxer、noise）完成。
//
// 已实现：
//   - tcp       - /ip4|ip6|dns4|dns6/.../tcp/<port>
//   - websocket - /ip4|ip6/.../tcp/<port>/ws
package transport

// Package swarm 管理到其他节点的连接
//
// 每个对端只保留一条连接：
//
//	transport.Conn -> yamux 会话 -> 一条 Noise 安全流
//
// 安全流握手完成后，连接以对端公钥标识。每条连接有一个有界出站队列与
// 读写两个 goroutine；收到的消息汇入 Inbound 通道，连接建立与断开以
// Event 通知。Swarm 不解析消息内容。
//
// # 出站队列
//
// 队列容量默认 1024。队满时丢弃最早的普通消息并把它的 Tag 交还调用方；
// 订阅推送不会被丢弃，队列全部为订阅推送时新的推送返回 ErrSubscriberSlow，
// 新的普通消息返回 ErrOverloaded。
//
// # 重复连接
//
// 双方同时拨号时，两端都保留发起方 ID 较小的那条连接，另一条静默关闭，
// 队列中尚未发送的消息转移到保留的连接上。
package swarm

// Package wire 定义节点之间交换的消息
//
// 每条安全流消息是一个 CBOR 编码的 Envelope：
//
//	Envelope{id, kind, request | response}
//
// kind 取值：
//   - Request：请求，id 由发送方分配
//   - Response：对同一 id 请求的响应
//   - Publish：订阅推送，id 为原 Subscribe 请求的 id
//
// 失败以 FailureKind 传输，FailureKind.Err 与 FailureFor 在本地错误与
// 线上失败之间双向映射。
package wire

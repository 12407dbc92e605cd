// Package noise 实现 Subfield 的流级安全会话
//
// 每条流独立执行 Noise_NN_25519_ChaChaPoly_BLAKE2s 握手：
//
//	-> e                  (消息 1，发起者)
//	<- e, ee              (消息 2，响应者进入传输模式)
//	-> Hello              (消息 3，发起者身份，已加密)
//	<- Hello              (响应者身份，已加密)
//
// NN 模式本身不认证身份，Hello 中携带 Ed25519 公钥以及对握手哈希的签名，
// 将会话绑定到节点标识。
//
// 传输模式下，每条消息按 1008 字节明文分块加密为 1024 字节密文块，
// 帧格式为 uvarint(len) || 密文。
package noise

// Package crypto 提供 Subfield 密码学原语
//
// 同一个 Ed25519 密钥对既用于签名，也经 Montgomery 转换后用于 X25519 密钥协商：
//   - keypair.go - Ed25519 密钥对、签名校验、Edwards/Montgomery 公钥互转
//   - ecdh.go    - X25519 共享密钥
//   - aead.go    - ChaCha20-Poly1305，输出 nonce(12B) || 密文
//   - hash.go    - BLAKE3
//
// 所有失败都以 *Error 返回，可用 errors.Is 匹配 types 包中的错误分类。
package crypto

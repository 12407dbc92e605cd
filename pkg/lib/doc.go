// Package lib 包含与网络组件无关的基础工具库
//
//   - crypto: Ed25519 密钥对、X25519、ChaCha20-Poly1305、BLAKE3
//   - log: 按子系统分级的 slog 日志封装
//
// pkg/ 下的另外两类内容：
//
//   - types/: 公共类型（V256、键、错误分类）
//   - record/: 记录与签名
package lib

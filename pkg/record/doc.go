// Package record 定义 Subfield 签名记录
//
// 记录以确定性 CBOR 编码为 record_bytes，作者（key.signer 对应的私钥）
// 对 record_bytes 做 Ed25519 签名。线上传输形式为 Signed{record_bytes, signature}。
//
// 同一复合键的最新记录由 updated_at 决定，updated_at 相同时
// record_bytes 字典序较大者胜出。
package record

// Package storage 提供记录存储
//
// 两种后端：
//
//	类型     | 说明
//	---------|------------------------------------------
//	memory   | golang-lru 有界缓存，超出容量时淘汰最久未用的记录
//	badger   | BadgerDB 持久化存储，后台运行值日志 GC
//
// # 索引
//
// 每条记录以完整键哈希为主键保存，同时在其 7 个字段组合哈希下建立索引，
// 因此部分键查询可以直接命中：
//
//	前缀 | 内容
//	-----|--------------------------------------------
//	r/   | r/<完整键哈希> -> CBOR(Signed)
//	i/   | i/<组合哈希>/<完整键哈希> -> 空
//
// 多条记录匹配同一部分键时，返回 updated_at 最新者，
// 时间相同时比较 record_bytes。
//
// # 本地写入通知
//
// Feed 包装任意 Store，每次成功 Put 后向订阅方投递 PutEvent。
// 订阅队列无界且不丢失，写入方永不阻塞。
package storage

// Package metrics 提供节点指标
//
// 每个 Subfield 实例持有独立的 prometheus.Registry，多个实例可以在同一
// 进程中共存。指标名均以 subfield_ 开头：
//
//	指标                          | 类型      | 标签
//	------------------------------|-----------|----------------
//	subfield_requests_total       | counter   | type, outcome
//	subfield_request_seconds      | histogram | type
//	subfield_forwarded_total      | counter   | type
//	subfield_dropped_total        | counter   | reason
//	subfield_bytes_total          | counter   | direction
//	subfield_routing_table_peers  | gauge     |
//	subfield_connected_peers      | gauge     |
//	subfield_subscriptions        | gauge     |
//
// Bandwidth 另外按节点维护最近 60 秒的收发速率，供管理接口展示。
package metrics

// Package admin 提供节点的管理 HTTP 服务
//
// 端点：
//
//	GET /bootstrap                              可拨号的监听地址（JSON 数组）
//	GET /peers                                  已连接节点与流量统计
//	GET /records/{signer}/{cosigner}/{tangent}  按完整键读取记录
//	GET /metrics                                Prometheus 指标
//
// 错误按 StatusFor 映射：记录不存在 404，签名无效 403，超时 504，
// 过载 503，键格式错误 400，其余 500。
//
//go:generate mockgen -destination=mocks/node.go -package=mocks github.com/dep2p/go-subfield/internal/admin Node
package admin

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// 丢弃原因
const (
	DropOverloaded     = "overloaded"
	DropSubscriberSlow = "subscriber_slow"
	DropLateResponse   = "late_response"
)

// Metrics 节点指标集合
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	forwarded     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	bytes         *prometheus.CounterVec
	tableSize     prometheus.Gauge
	peers         prometheus.Gauge
	subscriptions prometheus.Gauge
}

// New 在 reg 上注册指标，reg 为 nil 时创建新的 Registry
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subfield_requests_total",
			Help: "Requests handled by this node.",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subfield_request_seconds",
			Help:    "Latency of caller-issued requests.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"type"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subfield_forwarded_total",
			Help: "Requests forwarded to a closer peer.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subfield_dropped_total",
			Help: "Messages dropped by backpressure.",
		}, []string{"reason"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subfield_bytes_total",
			Help: "Encrypted message bytes on secure streams.",
		}, []string{"direction"}),
		tableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subfield_routing_table_peers",
			Help: "Peers in the routing table.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subfield_connected_peers",
			Help: "Peers with an open secure stream.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subfield_subscriptions",
			Help: "Active subscription bindings served by this node.",
		}),
	}

	reg.MustRegister(m.requests, m.duration, m.forwarded, m.dropped, m.bytes,
		m.tableSize, m.peers, m.subscriptions)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Request 记录一次请求处理结果
func (m *Metrics) Request(typ, outcome string) {
	m.requests.WithLabelValues(typ, outcome).Inc()
}

// Observe 记录调用方请求耗时
func (m *Metrics) Observe(typ string, d time.Duration) {
	m.duration.WithLabelValues(typ).Observe(d.Seconds())
}

// Forwarded 记录一次转发
func (m *Metrics) Forwarded(typ string) {
	m.forwarded.WithLabelValues(typ).Inc()
}

// Dropped 记录一次丢弃
func (m *Metrics) Dropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// BytesIn 记录入站字节
func (m *Metrics) BytesIn(n int) {
	m.bytes.WithLabelValues("in").Add(float64(n))
}

// BytesOut 记录出站字节
func (m *Metrics) BytesOut(n int) {
	m.bytes.WithLabelValues("out").Add(float64(n))
}

// SetTableSize 设置路由表大小
func (m *Metrics) SetTableSize(n int) {
	m.tableSize.Set(float64(n))
}

// SetPeers 设置已连接节点数
func (m *Metrics) SetPeers(n int) {
	m.peers.Set(float64(n))
}

// SetSubscriptions 设置订阅绑定数
func (m *Metrics) SetSubscriptions(n int) {
	m.subscriptions.Set(float64(n))
}

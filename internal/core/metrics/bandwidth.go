package metrics

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-subfield/pkg/types"
)

// Stats 节点带宽统计
type Stats struct {
	TotalIn  int64   `json:"total_in"`
	TotalOut int64   `json:"total_out"`
	RateIn   float64 `json:"rate_in"`
	RateOut  float64 `json:"rate_out"`
}

type peerMeter struct {
	totalIn, totalOut int64
	in, out           *RateMeter
}

// Bandwidth 按节点统计安全流收发字节
type Bandwidth struct {
	clk   clock.Clock
	mu    sync.Mutex
	peers map[types.V256]*peerMeter
	m     *Metrics
}

// NewBandwidth 创建带宽统计，m 可以为 nil
func NewBandwidth(clk clock.Clock, m *Metrics) *Bandwidth {
	if clk == nil {
		clk = clock.New()
	}
	return &Bandwidth{clk: clk, peers: make(map[types.V256]*peerMeter), m: m}
}

func (b *Bandwidth) meter(p types.V256) *peerMeter {
	pm, ok := b.peers[p]
	if !ok {
		pm = &peerMeter{in: NewRateMeter(b.clk), out: NewRateMeter(b.clk)}
		b.peers[p] = pm
	}
	return pm
}

// LogRecv 记录入站消息
func (b *Bandwidth) LogRecv(p types.V256, n int) {
	b.mu.Lock()
	pm := b.meter(p)
	pm.totalIn += int64(n)
	b.mu.Unlock()
	pm.in.Add(int64(n))
	if b.m != nil {
		b.m.BytesIn(n)
	}
}

// LogSent 记录出站消息
func (b *Bandwidth) LogSent(p types.V256, n int) {
	b.mu.Lock()
	pm := b.meter(p)
	pm.totalOut += int64(n)
	b.mu.Unlock()
	pm.out.Add(int64(n))
	if b.m != nil {
		b.m.BytesOut(n)
	}
}

// ForPeer 返回节点统计
func (b *Bandwidth) ForPeer(p types.V256) Stats {
	b.mu.Lock()
	pm, ok := b.peers[p]
	if !ok {
		b.mu.Unlock()
		return Stats{}
	}
	in, out := pm.totalIn, pm.totalOut
	b.mu.Unlock()
	return Stats{TotalIn: in, TotalOut: out, RateIn: pm.in.Rate(), RateOut: pm.out.Rate()}
}

// Forget 移除节点统计
func (b *Bandwidth) Forget(p types.V256) {
	b.mu.Lock()
	delete(b.peers, p)
	b.mu.Unlock()
}

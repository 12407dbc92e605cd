package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateMeter 速率计算器（基于滑动窗口）
//
// 使用 60 个 1 秒桶来计算最近 60 秒的平均速率。
type RateMeter struct {
	clk      clock.Clock
	mu       sync.Mutex
	buckets  [60]int64
	lastIdx  int
	lastTime time.Time
}

// NewRateMeter 创建速率计算器
func NewRateMeter(clk clock.Clock) *RateMeter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateMeter{clk: clk, lastTime: clk.Now()}
}

// advance 将窗口推进到当前时间，调用时持有 r.mu
func (r *RateMeter) advance() {
	now := r.clk.Now()
	seconds := int(now.Sub(r.lastTime) / time.Second)
	if seconds <= 0 {
		return
	}
	if seconds >= len(r.buckets) {
		r.buckets = [60]int64{}
		r.lastIdx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.lastIdx = (r.lastIdx + 1) % len(r.buckets)
			r.buckets[r.lastIdx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}

// Add 添加字节数到当前桶
func (r *RateMeter) Add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	r.buckets[r.lastIdx] += n
}

// Rate 返回最近 60 秒的平均速率（字节/秒）
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	var total int64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / float64(len(r.buckets))
}

package engine

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-subfield/internal/core/kad"
	"github.com/dep2p/go-subfield/internal/core/metrics"
)

// Config 引擎配置
type Config struct {
	// Kad 路由表参数
	Kad kad.Config

	// HopLimit 调用方请求的初始跳数
	HopLimit uint8

	// RequestTimeout 出站请求截止时间
	RequestTimeout time.Duration

	// GetFallback 本地最近且未命中时改用其他字段查询
	GetFallback bool

	// ProbeInterval 路由表探测与空闲连接清理周期
	ProbeInterval time.Duration

	// ProbeTimeout 单次探测超时
	ProbeTimeout time.Duration

	// SubscriptionBuffer 本地订阅通道容量
	SubscriptionBuffer int

	// CallQueue 调用方请求队列容量
	CallQueue int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Kad:                kad.DefaultConfig(),
		HopLimit:           20,
		RequestTimeout:     10 * time.Second,
		GetFallback:        true,
		ProbeInterval:      30 * time.Second,
		ProbeTimeout:       5 * time.Second,
		SubscriptionBuffer: 64,
		CallQueue:          1024,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Kad.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch {
	case c.HopLimit == 0:
		return fmt.Errorf("%w: hop limit must be positive", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	case c.ProbeInterval <= 0:
		return fmt.Errorf("%w: probe interval must be positive", ErrInvalidConfig)
	case c.ProbeTimeout <= 0:
		return fmt.Errorf("%w: probe timeout must be positive", ErrInvalidConfig)
	case c.SubscriptionBuffer <= 0:
		return fmt.Errorf("%w: subscription buffer must be positive", ErrInvalidConfig)
	case c.CallQueue <= 0:
		return fmt.Errorf("%w: call queue must be positive", ErrInvalidConfig)
	}
	return nil
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

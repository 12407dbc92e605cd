package swarm

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/internal/core/security/noise"
)

// Config Swarm 配置
type Config struct {
	// MaxMessageSize 单条消息明文上限
	MaxMessageSize int

	// QueueSize 每个对端的出站队列容量
	QueueSize int

	// DialTimeout 单个地址的拨号与升级超时
	DialTimeout time.Duration

	// HandshakeTimeout 入站连接完成握手的时限
	HandshakeTimeout time.Duration

	// IdleTimeout 空闲连接关闭阈值，0 表示不关闭
	IdleTimeout time.Duration

	// DialRate 每秒拨号数上限，DialBurst 为突发量
	DialRate  float64
	DialBurst int

	// InboundBuffer 入站消息通道容量
	InboundBuffer int

	// EventBuffer 事件通道容量
	EventBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:   noise.DefaultMaxMessageSize,
		QueueSize:        1024,
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		IdleTimeout:      60 * time.Second,
		DialRate:         10,
		DialBurst:        20,
		InboundBuffer:    1024,
		EventBuffer:      256,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch {
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	case c.DialTimeout <= 0 || c.HandshakeTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfig)
	case c.DialRate <= 0 || c.DialBurst <= 0:
		return fmt.Errorf("%w: dial rate must be positive", ErrInvalidConfig)
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 1024
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return nil
}

func (c *Config) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.DialRate), c.DialBurst)
}

// Option Swarm 选项函数
type Option func(*Swarm)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(s *Swarm) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithBandwidth 设置带宽统计
func WithBandwidth(bw *metrics.Bandwidth) Option {
	return func(s *Swarm) {
		s.bw = bw
	}
}

// Package yamux 提供基于 hashicorp/yamux 的多路复用实现
package yamux

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// DefaultConfig 返回默认的 yamux 配置
func DefaultConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard,
	}
}

// ConfigWithKeepAlive 使用指定保活间隔的配置
func ConfigWithKeepAlive(interval time.Duration) *yamux.Config {
	cfg := DefaultConfig()
	if interval > 0 {
		cfg.KeepAliveInterval = interval
	}
	return cfg
}

package storage

import (
	"fmt"
	"time"
)

// 存储类型
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
)

// Config 存储配置
type Config struct {
	// Type 后端类型：memory 或 badger
	Type string `json:"type"`

	// Path BadgerDB 数据目录，badger 类型必需
	Path string `json:"path,omitempty"`

	// CacheSize memory 类型的最大记录数
	CacheSize int `json:"cache_size,omitempty"`

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool `json:"sync_writes,omitempty"`

	// GCInterval 值日志 GC 间隔，0 禁用
	GCInterval time.Duration `json:"-"`

	// GCDiscardRatio 值日志 GC 丢弃比例
	GCDiscardRatio float64 `json:"-"`

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64 `json:"-"`

	// Compression ZSTD 压缩级别，0 禁用
	Compression int `json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Type:           TypeMemory,
		CacheSize:      100_000,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
		BlockCacheSize: 64 << 20,
		Compression:    1,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Type {
	case TypeMemory:
		if c.CacheSize <= 0 {
			return fmt.Errorf("%w: cache_size must be positive", ErrInvalidConfig)
		}
	case TypeBadger:
		if c.Path == "" {
			return fmt.Errorf("%w: badger store requires path", ErrInvalidConfig)
		}
		if c.GCInterval > 0 && c.GCInterval < time.Minute {
			c.GCInterval = time.Minute
		}
		if c.GCDiscardRatio <= 0 || c.GCDiscardRatio > 1 {
			c.GCDiscardRatio = 0.5
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	return nil
}

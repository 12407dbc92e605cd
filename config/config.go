// Package config 提供 Subfield 节点的统一配置
//
// 配置以 JSON 文件加载，缺省字段取 DefaultConfig 的值：
//
//	cfg, err := config.LoadFile("subfield.json")
//	cfg.DevMode = true
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-subfield/internal/core/kad"
	"github.com/dep2p/go-subfield/internal/core/security/noise"
	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid")

// Config 是 Subfield 节点的完整配置
type Config struct {
	// Keypair Ed25519 种子的十六进制编码，为空时启动生成
	Keypair string `json:"keypair,omitempty"`

	// ListenAddresses 监听的 multiaddr 列表
	ListenAddresses []string `json:"listen_addresses"`

	// BootstrapMultiaddrs 引导节点地址，支持 /dnsaddr
	BootstrapMultiaddrs []string `json:"bootstrap_multiaddrs,omitempty"`

	// BootstrapURLs 返回 multiaddr JSON 数组的 HTTP 地址
	BootstrapURLs []string `json:"bootstrap_urls,omitempty"`

	// BootstrapMaxBackoff 引导重试退避上限
	BootstrapMaxBackoff Duration `json:"bootstrap_max_backoff"`

	// Kad 路由表参数
	Kad kad.Config `json:"kad"`

	// HopLimit 请求最大转发跳数
	HopLimit uint8 `json:"hop_limit"`

	// RequestTimeout 出站请求截止时间
	RequestTimeout Duration `json:"request_timeout_ms"`

	// IdleConnectionTimeout 空闲连接关闭阈值
	IdleConnectionTimeout Duration `json:"idle_connection_timeout_ms"`

	// DevMode 允许回环与私有地址出现在 /bootstrap 中
	DevMode bool `json:"dev_mode"`

	// MaxMessageSize 单条消息明文上限
	MaxMessageSize int `json:"max_message_size"`

	// OutboundQueueSize 每个对端的出站队列容量
	OutboundQueueSize int `json:"outbound_queue_size"`

	// SubscriptionBuffer 订阅通道容量
	SubscriptionBuffer int `json:"subscription_buffer"`

	// GetFallback 本地未命中时尝试其他字段
	GetFallback bool `json:"get_fallback"`

	// ProbeInterval 路由表探测周期
	ProbeInterval Duration `json:"probe_interval"`

	// DialRate 每秒拨号数上限
	DialRate float64 `json:"dial_rate"`

	// Store 记录存储
	Store storage.Config `json:"store"`

	// AdminListen 管理 HTTP 服务监听地址，为空时不启动
	AdminListen string `json:"admin_listen,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddresses:       []string{"/ip4/0.0.0.0/tcp/4100", "/ip4/0.0.0.0/tcp/4101/ws"},
		BootstrapMaxBackoff:   Duration(60 * time.Second),
		Kad:                   kad.DefaultConfig(),
		HopLimit:              20,
		RequestTimeout:        Duration(10 * time.Second),
		IdleConnectionTimeout: Duration(60 * time.Second),
		MaxMessageSize:        noise.DefaultMaxMessageSize,
		OutboundQueueSize:     1024,
		SubscriptionBuffer:    64,
		GetFallback:           true,
		ProbeInterval:         Duration(30 * time.Second),
		DialRate:              10,
		Store:                 storage.DefaultConfig(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Keypair != "" {
		if _, err := crypto.KeypairFromHex(c.Keypair); err != nil {
			return fmt.Errorf("%w: keypair: %v", ErrInvalidConfig, err)
		}
	}
	if _, err := ParseMultiaddrs(c.ListenAddresses); err != nil {
		return fmt.Errorf("%w: listen_addresses: %v", ErrInvalidConfig, err)
	}
	if _, err := ParseMultiaddrs(c.BootstrapMultiaddrs); err != nil {
		return fmt.Errorf("%w: bootstrap_multiaddrs: %v", ErrInvalidConfig, err)
	}
	for _, s := range c.BootstrapURLs {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: bootstrap url %q", ErrInvalidConfig, s)
		}
	}
	if err := c.Kad.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch {
	case c.HopLimit == 0:
		return fmt.Errorf("%w: hop_limit must be positive", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.IdleConnectionTimeout < 0:
		return fmt.Errorf("%w: idle_connection_timeout_ms must not be negative", ErrInvalidConfig)
	case c.BootstrapMaxBackoff <= 0:
		return fmt.Errorf("%w: bootstrap_max_backoff must be positive", ErrInvalidConfig)
	case c.MaxMessageSize <= 0 || c.MaxMessageSize > noise.DefaultMaxMessageSize:
		return fmt.Errorf("%w: max_message_size must be in 1..%d", ErrInvalidConfig, noise.DefaultMaxMessageSize)
	case c.OutboundQueueSize <= 0:
		return fmt.Errorf("%w: outbound_queue_size must be positive", ErrInvalidConfig)
	case c.SubscriptionBuffer <= 0:
		return fmt.Errorf("%w: subscription_buffer must be positive", ErrInvalidConfig)
	case c.ProbeInterval <= 0:
		return fmt.Errorf("%w: probe_interval must be positive", ErrInvalidConfig)
	case c.DialRate <= 0:
		return fmt.Errorf("%w: dial_rate must be positive", ErrInvalidConfig)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: store: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ParseMultiaddrs 解析 multiaddr 字符串列表
func ParseMultiaddrs(ss []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(ss))
	for _, s := range ss {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// FromJSON 在默认配置上应用 JSON
func FromJSON(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return FromJSON(data)
}

// SaveFile 以 JSON 写入配置，文件权限 0600
func (c *Config) SaveFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

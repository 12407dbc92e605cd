package subfield

import (
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/core/transport"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	store      storage.Store
	clk        clock.Clock
	transports transport.Set
	registry   *prometheus.Registry
}

// WithStore 使用外部记录存储，替代配置中的 store
//
// 节点关闭时一并关闭该存储。
func WithStore(s storage.Store) Option {
	return func(o *options) error {
		if s == nil {
			return errors.New("subfield: nil store")
		}
		o.store = s
		return nil
	}
}

// WithClock 设置时钟，测试中使用 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("subfield: nil clock")
		}
		o.clk = clk
		return nil
	}
}

// WithTransports 替换默认的 tcp 与 websocket 传输
func WithTransports(ts ...transport.Transport) Option {
	return func(o *options) error {
		if len(ts) == 0 {
			return errors.New("subfield: no transports")
		}
		o.transports = transport.Set(ts)
		return nil
	}
}

// WithRegistry 在指定 Registry 上注册指标
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

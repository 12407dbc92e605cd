package subfield

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-subfield/config"
)

// optionsGroup 通过 fx 注入的节点选项
const optionsGroup = "subfield.options"

// Params 节点依赖参数
type Params struct {
	fx.In

	Config    config.Config
	Lifecycle fx.Lifecycle
	Options   []Option `group:"subfield.options"`
}

// Module 是节点的 Fx 模块
//
// 需要外部提供 config.Config；节点随 fx 应用启动与停止。
var Module = fx.Module("subfield",
	fx.Provide(NewFromParams),
)

// NewFromParams 创建节点并注册生命周期钩子
func NewFromParams(p Params) (*Subfield, error) {
	node, err := New(p.Config, p.Options...)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: node.Start,
		OnStop: func(context.Context) error {
			return node.Close()
		},
	})
	return node, nil
}

// ProvideOption 向 Module 注入一个节点选项
func ProvideOption(opt Option) fx.Option {
	return fx.Provide(fx.Annotated{
		Group:  optionsGroup,
		Target: func() Option { return opt },
	})
}

// FxLogger 关闭 fx 自身的事件日志
func FxLogger() fx.Option {
	return fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	})
}

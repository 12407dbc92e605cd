package admin

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-subfield/config"
)

// Module 返回管理服务 Fx 模块
//
// config.Config.AdminListen 为空时不启动。
func Module() fx.Option {
	return fx.Module("admin",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// Params 管理服务依赖参数
type Params struct {
	fx.In

	Config config.Config
	Node   Node
}

// Output 管理服务输出
type Output struct {
	fx.Out

	Server *Server
}

// NewFromParams 从参数创建管理服务
func NewFromParams(p Params) Output {
	if p.Config.AdminListen == "" {
		return Output{}
	}
	return Output{
		Server: New(Config{
			Addr:           p.Config.AdminListen,
			DevMode:        p.Config.DevMode,
			RequestTimeout: p.Config.RequestTimeout.Duration(),
		}, p.Node),
	}
}

func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: server.Start,
		OnStop: func(context.Context) error {
			return server.Stop()
		},
	})
}

// Package main 提供 subfield 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/fx"

	subfield "github.com/dep2p/go-subfield"
	"github.com/dep2p/go-subfield/config"
	"github.com/dep2p/go-subfield/internal/admin"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/lib/log"
)

var logger = log.Logger("cmd/subfield")

// Version 版本号
const Version = "0.1.0"

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖
//   JSON 配置文件：节点的固定配置，包括身份
//
var (
	configFile   = flag.String("config", "", "配置文件路径，不存在时创建")
	listen       = flag.String("listen", "", "监听地址，逗号分隔的 multiaddr")
	bootstrap    = flag.String("bootstrap", "", "引导节点，逗号分隔的 multiaddr")
	bootstrapURL = flag.String("bootstrap-url", "", "引导 URL，逗号分隔")
	adminAddr    = flag.String("admin", "", "管理 HTTP 服务监听地址")
	devMode      = flag.Bool("dev", false, "开发模式：/bootstrap 保留回环与私有地址")
	showVersion  = flag.Bool("version", false, "显示版本信息")

	requestTimeout config.Duration
)

func init() {
	flag.Var(&requestTimeout, "request-timeout", "请求超时，如 10s 或毫秒数")
}

const startTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("subfield %s\n", Version)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	var node *subfield.Subfield
	app := fx.New(
		subfield.FxLogger(),
		fx.Supply(cfg),
		subfield.Module,
		fx.Provide(func(n *subfield.Subfield) admin.Node { return n }),
		admin.Module(),
		fx.Populate(&node),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("构建失败: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	printNodeInfo(node, cfg)
	fmt.Println("节点已启动，按 Ctrl+C 退出")
	waitForSignal()

	fmt.Println("\n正在关闭节点...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
	defer stopCancel()
	return app.Stop(stopCtx)
}

// loadConfig 加载配置文件并应用命令行覆盖
//
// 配置中没有身份时生成新的密钥对，并在给定配置文件时写回。
func loadConfig() (config.Config, error) {
	cfg := config.DefaultConfig()
	exists := false
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		switch {
		case err == nil:
			cfg, exists = loaded, true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return config.Config{}, err
		}
	}

	if v := splitList(*listen); len(v) > 0 {
		cfg.ListenAddresses = v
	}
	if v := splitList(*bootstrap); len(v) > 0 {
		cfg.BootstrapMultiaddrs = v
	}
	if v := splitList(*bootstrapURL); len(v) > 0 {
		cfg.BootstrapURLs = v
	}
	if *adminAddr != "" {
		cfg.AdminListen = *adminAddr
	}
	if *devMode {
		cfg.DevMode = true
	}
	if requestTimeout > 0 {
		cfg.RequestTimeout = requestTimeout
	}

	generated := false
	if cfg.Keypair == "" {
		kp, err := crypto.GenerateKeypair()
		if err != nil {
			return config.Config{}, err
		}
		cfg.Keypair = kp.SeedHex()
		generated = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	if *configFile != "" && (generated || !exists) {
		persist := cfg
		if exists {
			// 只写回身份，不把命令行覆盖固化到文件
			persist, _ = config.LoadFile(*configFile)
			persist.Keypair = cfg.Keypair
		}
		if err := persist.SaveFile(*configFile); err != nil {
			return config.Config{}, fmt.Errorf("写入配置文件: %w", err)
		}
		logger.Info("身份已写入配置文件", "path", *configFile)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printNodeInfo(node *subfield.Subfield, cfg config.Config) {
	fmt.Printf("节点 ID: %s\n", node.ID())
	fmt.Println("监听地址:")
	for _, addr := range node.Addrs() {
		fmt.Printf("  %s\n", addr)
	}
	if cfg.AdminListen != "" {
		fmt.Printf("管理服务: http://%s\n", cfg.AdminListen)
	}
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

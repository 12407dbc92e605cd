// Package log 提供 Subfield 统一日志接口
//
// 基于 Go 标准库 log/slog 封装。每个包声明一个组件 logger：
//
//	var logger = log.Logger("core/swarm")
//	logger.Info("连接建立", "peer", log.TruncateID(id, 8))
//
// 日志级别可以按组件通过环境变量配置：
//   - SUBFIELD_LOG_LEVEL: 组件=级别,组件=级别,默认级别
//     示例: core/swarm=debug,protocol/engine=warn,info
//   - SUBFIELD_LOG_FORMAT: text 或 json
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 日志级别常量
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// 环境变量名
const (
	EnvLevel  = "SUBFIELD_LOG_LEVEL"
	EnvFormat = "SUBFIELD_LOG_FORMAT"
)

// levelConfig 组件级别配置
type levelConfig struct {
	defaultLevel slog.Level
	components   map[string]slog.Level
}

func (c *levelConfig) levelFor(component string) slog.Level {
	if lvl, ok := c.components[component]; ok {
		return lvl
	}
	// 前缀匹配: "core" 覆盖 "core/swarm"
	best, bestLen := c.defaultLevel, -1
	for name, lvl := range c.components {
		if strings.HasPrefix(component, name+"/") && len(name) > bestLen {
			best, bestLen = lvl, len(name)
		}
	}
	return best
}

var (
	mu      sync.RWMutex
	base    *slog.Logger
	levels  *levelConfig
	jsonOut bool
)

// ParseLevels 解析级别配置字符串
//
// 格式: 组件=级别,组件=级别,默认级别。未识别的级别被忽略。
func ParseLevels(spec string) (slog.Level, map[string]slog.Level) {
	def := slog.LevelInfo
	comps := make(map[string]slog.Level)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(part, "="); ok {
			if l, ok := ParseLevel(lvl); ok {
				comps[strings.TrimSpace(name)] = l
			}
			continue
		}
		if l, ok := ParseLevel(part); ok {
			def = l
		}
	}
	return def, comps
}

// ParseLevel 解析单个级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Configure 使用级别字符串和输出格式重建默认 logger
func Configure(w io.Writer, levelSpec string, asJSON bool) {
	def, comps := ParseLevels(levelSpec)

	// handler 本身放行所有级别，组件过滤在 LazyLogger 中完成
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}
	var h slog.Handler
	if asJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	base = slog.New(h)
	levels = &levelConfig{defaultLevel: def, components: comps}
	jsonOut = asJSON
	mu.Unlock()
}

// SetOutput 重定向日志输出，保留当前级别配置
func SetOutput(w io.Writer) {
	Configure(w, os.Getenv(EnvLevel), strings.EqualFold(os.Getenv(EnvFormat), "json"))
}

// SetLevel 设置默认级别
func SetLevel(level slog.Level) {
	mu.Lock()
	levels.defaultLevel = level
	mu.Unlock()
}

// Default 返回当前基础 logger
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 组件 logger
//
// 每次调用时读取当前的基础 logger 与组件级别，运行时重新配置立即生效。
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	mu.RLock()
	lg, enabled := base, level >= levels.levelFor(l.component)
	mu.RUnlock()
	if !enabled {
		return
	}
	lg.With("component", l.component).Log(ctx, level, msg, args...)
}

// Enabled 报告该组件是否输出指定级别
func (l *LazyLogger) Enabled(level slog.Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= levels.levelFor(l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	SetOutput(os.Stderr)
}

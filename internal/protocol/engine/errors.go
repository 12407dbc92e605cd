package engine

import "errors"

var (
	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("engine: closed")

	// ErrAlreadyStarted 重复启动
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("engine: invalid config")
)

package storage

import (
	"errors"

	"github.com/dep2p/go-subfield/pkg/types"
)

var (
	// ErrNotFound 没有匹配的记录
	ErrNotFound = types.ErrNotFound

	// ErrClosed 存储已关闭
	ErrClosed = errors.New("storage: closed")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("storage: invalid config")

	// ErrUnknownType 未知的存储类型
	ErrUnknownType = errors.New("storage: unknown store type")
)

package crypto

import (
	"github.com/dep2p/go-subfield/pkg/types"
)

// 错误分类（复用 types 中的定义，便于上层统一匹配）
var (
	ErrFailedToEncrypt  = types.ErrFailedToEncrypt
	ErrFailedToDecrypt  = types.ErrFailedToDecrypt
	ErrInvalidSignature = types.ErrInvalidSignature
	ErrInvalidKey       = types.ErrInvalidKey
)

// Error 密码学操作错误
type Error struct {
	Op    string
	Kind  error
	Cause error
}

func newError(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Op + ": " + e.Kind.Error() + ": " + e.Cause.Error()
	}
	return e.Op + ": " + e.Kind.Error()
}

// Unwrap 同时暴露分类与底层原因
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

package noise

import (
	"fmt"

	"github.com/dep2p/go-subfield/pkg/types"
)

// HandshakeError 握手错误，握手失败时流必须关闭
type HandshakeError struct {
	Step string
	Err  error
}

// Error 实现 error 接口
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("noise handshake %s: %v", e.Step, e.Err)
}

// Unwrap 暴露握手分类与底层原因
func (e *HandshakeError) Unwrap() []error {
	return []error{types.ErrHandshake, e.Err}
}

func handshakeErr(step string, err error) error {
	return &HandshakeError{Step: step, Err: err}
}

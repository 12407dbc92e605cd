package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-subfield/pkg/types"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm: closed")

	// ErrNoConnection 没有到该节点的连接
	ErrNoConnection = errors.New("swarm: no connection to peer")

	// ErrNoAddresses 没有可用地址
	ErrNoAddresses = errors.New("swarm: no addresses")

	// ErrDialToSelf 拨号到了自己
	ErrDialToSelf = errors.New("swarm: dial to self attempted")

	// ErrPeerMismatch 对端身份与预期不符
	ErrPeerMismatch = errors.New("swarm: peer id mismatch")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("swarm: invalid config")
)

// DialError 拨号错误，包含每个地址的失败原因
type DialError struct {
	Peer   types.V256
	Errors []error
}

func (e *DialError) Error() string {
	switch len(e.Errors) {
	case 0:
		return fmt.Sprintf("failed to dial %s: %v", e.Peer.ShortString(), ErrNoAddresses)
	case 1:
		return fmt.Sprintf("failed to dial %s: %v", e.Peer.ShortString(), e.Errors[0])
	default:
		return fmt.Sprintf("failed to dial %s: %d errors: %v", e.Peer.ShortString(), len(e.Errors), e.Errors)
	}
}

// Unwrap 返回所有地址的错误
func (e *DialError) Unwrap() []error {
	if len(e.Errors) == 0 {
		return []error{ErrNoAddresses}
	}
	return e.Errors
}

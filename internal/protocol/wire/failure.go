package wire

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-subfield/pkg/types"
)

// FailureKind 线上失败类型
type FailureKind uint8

// 失败类型
const (
	FailureNone FailureKind = iota
	FailureInternal
	FailureNotFound
	FailureInvalidSignature
	FailureKeypairNotSigner
	FailureKeyMismatch
	FailureSerialization
	FailureOutdated
	FailureNoRoute
	FailureHopLimit
	FailureTimeout
	FailureOverloaded
	FailureSubscriberSlow
	FailureKeyIncomplete
	FailureMissingField
	FailureEmptyKey
	FailurePeerClosed
	FailureMessageTooLarge
)

var failureNames = map[FailureKind]string{
	FailureNone:             "none",
	FailureInternal:         "internal",
	FailureNotFound:         "not-found",
	FailureInvalidSignature: "invalid-signature",
	FailureKeypairNotSigner: "keypair-not-signer",
	FailureKeyMismatch:      "key-mismatch",
	FailureSerialization:    "serialization",
	FailureOutdated:         "outdated",
	FailureNoRoute:          "no-route",
	FailureHopLimit:         "hop-limit",
	FailureTimeout:          "timeout",
	FailureOverloaded:       "overloaded",
	FailureSubscriberSlow:   "subscriber-slow",
	FailureKeyIncomplete:    "key-incomplete",
	FailureMissingField:     "missing-field",
	FailureEmptyKey:         "empty-key",
	FailurePeerClosed:       "peer-closed",
	FailureMessageTooLarge:  "message-too-large",
}

// String 返回失败类型名称
func (k FailureKind) String() string {
	if s, ok := failureNames[k]; ok {
		return s
	}
	return fmt.Sprintf("failure(%d)", uint8(k))
}

// failureErrors 与本地哨兵错误的对应关系
var failureErrors = []struct {
	kind FailureKind
	err  error
}{
	{FailureNotFound, types.ErrNotFound},
	{FailureKeypairNotSigner, types.ErrKeypairNotSigner},
	{FailureInvalidSignature, types.ErrInvalidSignature},
	{FailureKeyMismatch, types.ErrKeyMismatch},
	{FailureSerialization, types.ErrSerialization},
	{FailureOutdated, types.ErrOutdated},
	{FailureNoRoute, types.ErrNoRoute},
	{FailureHopLimit, types.ErrHopLimit},
	{FailureTimeout, types.ErrTimeout},
	{FailureOverloaded, types.ErrOverloaded},
	{FailureSubscriberSlow, types.ErrSubscriberSlow},
	{FailureKeyIncomplete, types.ErrIncompleteKey},
	{FailureMissingField, types.ErrMissingField},
	{FailureEmptyKey, types.ErrEmptyKey},
	{FailurePeerClosed, types.ErrPeerClosed},
	{FailureMessageTooLarge, types.ErrMessageTooLarge},
}

// ErrInternal 对端内部错误
var ErrInternal = errors.New("wire: remote internal error")

// Err 返回失败类型对应的哨兵错误
func (k FailureKind) Err() error {
	if k == FailureNone {
		return nil
	}
	for _, fe := range failureErrors {
		if fe.kind == k {
			return fe.err
		}
	}
	return ErrInternal
}

// FailureFor 将本地错误映射为线上失败类型
//
// 按表顺序匹配，KeypairNotSigner 先于 InvalidSignature。
func FailureFor(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	for _, fe := range failureErrors {
		if errors.Is(err, fe.err) {
			return fe.kind
		}
	}
	return FailureInternal
}

// RemoteError 对端返回的失败
type RemoteError struct {
	Type   RequestType
	Kind   FailureKind
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed: %s: %s", e.Type, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s failed: %s", e.Type, e.Kind)
}

// Unwrap 返回对应的哨兵错误
func (e *RemoteError) Unwrap() error {
	return e.Kind.Err()
}

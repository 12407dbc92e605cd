package subfield

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/dep2p/go-subfield/pkg/types"
)

// 公共错误定义
var (
	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("subfield: node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("subfield: node already started")

	// ErrClosed 节点已关闭
	ErrClosed = errors.New("subfield: node closed")
)

// FieldOutcome 扇出中单个字段的结果
type FieldOutcome struct {
	Field types.RoutingField
	Err   error
}

// FanoutError 扇出操作的复合错误
//
// Outcomes 按扇出顺序列出全部三个字段，成功的字段 Err 为 nil。
// errors.Is 对任一失败字段的错误成立。
type FanoutError struct {
	Op       string
	Outcomes []FieldOutcome
}

func (e *FanoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed:", e.Op)
	for _, o := range e.Outcomes {
		if o.Err == nil {
			fmt.Fprintf(&b, " %s=ok;", o.Field)
		} else {
			fmt.Fprintf(&b, " %s=%v;", o.Field, o.Err)
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Unwrap 返回所有失败字段的错误
func (e *FanoutError) Unwrap() []error {
	var combined error
	for _, o := range e.Outcomes {
		combined = multierr.Append(combined, o.Err)
	}
	return multierr.Errors(combined)
}

// Failed 失败的字段
func (e *FanoutError) Failed() []types.RoutingField {
	var out []types.RoutingField
	for _, o := range e.Outcomes {
		if o.Err != nil {
			out = append(out, o.Field)
		}
	}
	return out
}

// fanoutErr 存在失败字段时返回 *FanoutError
func fanoutErr(op string, outcomes []FieldOutcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return &FanoutError{Op: op, Outcomes: outcomes}
		}
	}
	return nil
}

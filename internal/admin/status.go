package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/dep2p/go-subfield/pkg/types"
)

var statusTable = []struct {
	errs   []error
	status int
}{
	{[]error{types.ErrNotFound}, http.StatusNotFound},
	{[]error{types.ErrInvalidSignature, types.ErrKeypairNotSigner}, http.StatusForbidden},
	{[]error{types.ErrTimeout, context.DeadlineExceeded}, http.StatusGatewayTimeout},
	{[]error{types.ErrOverloaded, types.ErrSubscriberSlow}, http.StatusServiceUnavailable},
	{[]error{
		types.ErrInvalidBase32, types.ErrInvalidLength, types.ErrInvalidVersion,
		types.ErrEmptyKey, types.ErrIncompleteKey, types.ErrMissingField,
	}, http.StatusBadRequest},
}

// StatusFor 把错误映射为 HTTP 状态码
//
// 未列出的错误一律为 500。
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, row := range statusTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.status
			}
		}
	}
	return http.StatusInternalServerError
}

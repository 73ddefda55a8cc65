package processor

import (
	"context"
	stderrors "errors"
	"strings"

	"comfybridge/internal/pkg/errors"
)

// IsTruthy evaluates payload flags that may arrive as bool, number or string.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case int:
		return t == 1
	case int64:
		return t == 1
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s == "1" || s == "true" || s == "yes" || s == "on"
	default:
		return false
	}
}

// isRemote reports whether a descriptor names an HTTP(S) resource.
func isRemote(descriptor string) bool {
	head := descriptor
	if len(head) > 8 {
		head = head[:8]
	}
	head = strings.ToLower(head)
	return strings.HasPrefix(head, "http://") || strings.HasPrefix(head, "https://")
}

// contextError converts a done context into a coded error.
func contextError(ctx context.Context, op, operation string) *errors.Error {
	err := ctx.Err()
	if stderrors.Is(err, context.DeadlineExceeded) {
		e := errors.Timeout(operation)
		e.Op = op
		e.Err = err
		return e
	}
	return errors.E(errors.CodeInternal, op, err, operation+" canceled")
}

package requestid

import (
	"context"

	"github.com/kathanp/emailbot/pkg/logger"
)

type contextKey struct{}

// WithContext stores id for FromContext and for the logger's request_id attribute.
func WithContext(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, id)
	return logger.WithRequestID(ctx, id)
}

func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

package slogx

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/shopauth/pkg/idx"
)

type ctxKey struct{}

// WithContext attaches logger to ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithCallID tags base with a fresh call_id plus attrs and attaches the
// result to ctx. Every log line of one outbound call shares the id.
func WithCallID(ctx context.Context, base *slog.Logger, attrs ...any) (context.Context, *slog.Logger) {
	if base == nil {
		base = FromContext(ctx)
	}
	logger := base.With(append([]any{"call_id", idx.New().String()}, attrs...)...)
	return WithContext(ctx, logger), logger
}

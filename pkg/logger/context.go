package logger

import (
	"context"
	"log/slog"
)

type ctxKey string

const loggerKey ctxKey = "logger"

// With returns a context carrying a logger enriched with the given fields.
// The request-id middleware uses it to scope every log line under a trace id.
func With(ctx context.Context, fields ...any) context.Context {
	scoped := From(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, scoped)
}

// From returns the request-scoped logger, falling back to the process logger
// when the context carries none.
func From(ctx context.Context) *slog.Logger {
	if scoped, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return scoped
	}
	return LoggerWrapper()
}

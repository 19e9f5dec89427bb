package logger

import (
	"context"
	"log/slog"
	"os"
)

// New builds the process-wide structured logger. Output is always JSON so
// webhook traffic stays machine-parseable in every environment; local and dev
// get debug level.
func New(appEnv string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch appEnv {
	case "local", "dev":
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type ctxKey struct{}

// With stores a logger in ctx; From retrieves it, defaulting to slog.Default().
// Services pull request-scoped loggers this way instead of taking a logger
// parameter on every call.
func With(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

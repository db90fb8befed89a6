package logger

import (
	"context"
	"log/slog"
	"os"
)

// New returns a JSON logger on stdout; local and dev log at debug level.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	return FromOr(ctx, slog.Default())
}

// FromOr gets a logger from context, falling back to def.
func FromOr(ctx context.Context, def *slog.Logger) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return def
}

// ForIntegration scopes l to one tenant integration. Every per-tenant sync log line carries these.
func ForIntegration(l *slog.Logger, tenantID, integrationID, provider string) *slog.Logger {
	return l.With(
		slog.String("tenant_id", tenantID),
		slog.String("integration_id", integrationID),
		slog.String("provider", provider),
	)
}

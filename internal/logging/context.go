package logging

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/tabbackup/internal/logfields"
)

// LogContext holds run-scoped logging fields.
type LogContext struct {
	RunID string
	Site  string
	Kind  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	lc := FromContext(ctx)
	lc.RunID = runID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithSite adds a site name to the context.
func WithSite(ctx context.Context, site string) context.Context {
	lc := FromContext(ctx)
	lc.Site = site
	return context.WithValue(ctx, logContextKey, lc)
}

// WithKind adds an artifact kind to the context.
func WithKind(ctx context.Context, kind string) context.Context {
	lc := FromContext(ctx)
	lc.Kind = kind
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext, empty when none was set.
func FromContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func (lc LogContext) attrs() []any {
	var attrs []any
	if lc.RunID != "" {
		attrs = append(attrs, logfields.RunID(lc.RunID))
	}
	if lc.Site != "" {
		attrs = append(attrs, logfields.Site(lc.Site))
	}
	if lc.Kind != "" {
		attrs = append(attrs, logfields.ArtifactKind(lc.Kind))
	}
	return attrs
}

// Logger returns base enriched with the fields carried by ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	attrs := FromContext(ctx).attrs()
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}

package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for governance log fields.
type contextKey string

const (
	// ActorKey is the context key for the acting operator.
	ActorKey contextKey = "actor"

	// OperationKey is the context key for the governance operation name.
	OperationKey contextKey = "operation"

	// DraftIDKey is the context key for the draft being worked on.
	DraftIDKey contextKey = "draft_id"
)

// WithActor adds the acting operator to the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// WithOperation adds the operation name to the context.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OperationKey, op)
}

// WithDraftID adds a draft id to the context.
func WithDraftID(ctx context.Context, draftID string) context.Context {
	return context.WithValue(ctx, DraftIDKey, draftID)
}

// GetActor retrieves the acting operator from the context.
func GetActor(ctx context.Context) string {
	s, _ := ctx.Value(ActorKey).(string)
	return s
}

// ContextAttrs returns the log attributes carried by ctx.
func ContextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	for _, key := range []contextKey{ActorKey, OperationKey, DraftIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// contextHandler copies ContextAttrs onto each record.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := ContextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type (
	loggerKey struct{}
	cycleKey  struct{}
)

// cycle names the checkpoint run a context belongs to.
type cycle struct {
	child string
	id    string
}

// WithLogger stores l in ctx for FromContext and L.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

// WithCycle scopes ctx to one checkpoint cycle of child. Records written
// through L(ctx) carry both names.
func WithCycle(ctx context.Context, l Logger, child, cycleID string) context.Context {
	if l != nil {
		ctx = WithLogger(ctx, l)
	}
	return context.WithValue(ctx, cycleKey{}, cycle{child: child, id: cycleID})
}

// ChildFromContext returns the child set by WithCycle.
func ChildFromContext(ctx context.Context) string {
	c, _ := ctx.Value(cycleKey{}).(cycle)
	return c.child
}

// CycleIDFromContext returns the cycle id set by WithCycle.
func CycleIDFromContext(ctx context.Context) string {
	c, _ := ctx.Value(cycleKey{}).(cycle)
	return c.id
}

// TraceIDFromContext returns the trace id of the active span, or "".
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// L returns the context's logger bound to ctx.
func L(ctx context.Context) Logger {
	return FromContext(ctx).WithContext(ctx)
}

package logger

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func spanContext(ctx context.Context, tid trace.TraceID) context.Context {
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  trace.SpanID{0x01},
	}))
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != Default() {
		t.Error("empty context should yield the default logger")
	}

	rec := &recordingLogger{}
	FromContext(WithLogger(context.Background(), rec)).Info("hello")
	if len(rec.msgs) != 1 || rec.msgs[0] != "info:hello" {
		t.Errorf("stored logger not used: %v", rec.msgs)
	}
}

func TestWithCycle(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithCycle(context.Background(), rec, "counter", "ckpt-01j")

	if got := ChildFromContext(ctx); got != "counter" {
		t.Errorf("child = %q", got)
	}
	if got := CycleIDFromContext(ctx); got != "ckpt-01j" {
		t.Errorf("cycle id = %q", got)
	}
	if FromContext(ctx) != Logger(rec) {
		t.Error("WithCycle did not store the logger")
	}

	keep := WithCycle(WithLogger(context.Background(), rec), nil, "other", "ckpt-02")
	if FromContext(keep) != Logger(rec) {
		t.Error("nil logger replaced the stored one")
	}

	bg := context.Background()
	if ChildFromContext(bg) != "" || CycleIDFromContext(bg) != "" {
		t.Error("empty context should have no cycle")
	}
}

func TestTraceIDFromContext(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("trace id without span = %q", got)
	}
	tid := trace.TraceID{0x0f, 0x0e, 0x0d, 0x0c}
	if got := TraceIDFromContext(spanContext(context.Background(), tid)); got != tid.String() {
		t.Errorf("trace id = %q, want %q", got, tid.String())
	}
}

func TestL(t *testing.T) {
	tid := trace.TraceID{0xaa, 0xbb}
	tests := []struct {
		name string
		ctx  func(Logger) context.Context
		want map[string]any
	}{
		{
			name: "bare",
			ctx:  func(l Logger) context.Context { return WithLogger(context.Background(), l) },
			want: map[string]any{},
		},
		{
			name: "cycle",
			ctx: func(l Logger) context.Context {
				return WithCycle(context.Background(), l, "counter", "ckpt-1")
			},
			want: map[string]any{"child": "counter", "cycle_id": "ckpt-1"},
		},
		{
			name: "cycle and span",
			ctx: func(l Logger) context.Context {
				return spanContext(WithCycle(context.Background(), l, "counter", "ckpt-2"), tid)
			},
			want: map[string]any{"child": "counter", "cycle_id": "ckpt-2", "trace_id": tid.String()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newJSON(t, "info")
			L(tt.ctx(l)).Info("phase done")

			lines := decodeLines(t, buf)
			if len(lines) != 1 {
				t.Fatalf("got %d lines, want 1", len(lines))
			}
			for _, k := range []string{"child", "cycle_id", "trace_id"} {
				want, ok := tt.want[k]
				got, present := lines[0][k]
				if ok != present || (ok && got != want) {
					t.Errorf("%s = %v, want %v", k, got, want)
				}
			}
		})
	}
}

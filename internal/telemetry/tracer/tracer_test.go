package tracer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorded(t *testing.T) (*Provider, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	p, err := New(Config{ServiceName: "test-service", Processors: []sdktrace.SpanProcessor{rec}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, rec
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", Config{}, false},
		{"none", Config{ServiceName: "svc", Exporter: ExporterNone}, false},
		{"stdout", Config{ServiceName: "svc", Exporter: ExporterStdout, Output: &bytes.Buffer{}}, false},
		{"unknown", Config{Exporter: "jaeger"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if p == nil {
					t.Fatal("New returned nil provider")
				}
				_ = p.Shutdown(context.Background())
			}
		})
	}
}

func TestProvider_Shutdown_Multiple(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := context.Background()

	// Multiple shutdowns should be safe
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("First shutdown returned error: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("Second shutdown returned error: %v", err)
	}
}

func TestStartSpan_Recorded(t *testing.T) {
	_, rec := newRecorded(t)

	ctx, span := StartSpan(context.Background(), "checkpoint")
	span.SetAttribute("cycle", uint64(3))
	span.SetAttribute("mode", "incremental")
	span.End()

	if !trace.SpanContextFromContext(ctx).IsValid() {
		t.Error("StartSpan should put a valid span context into ctx")
	}

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Name() != "checkpoint" {
		t.Errorf("span name = %q, want %q", ended[0].Name(), "checkpoint")
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["cycle"].AsInt64() != 3 {
		t.Errorf("cycle attribute = %v, want 3", attrs["cycle"])
	}
	if attrs["mode"].AsString() != "incremental" {
		t.Errorf("mode attribute = %v, want incremental", attrs["mode"])
	}
}

func TestStartSpan_NestedSpans(t *testing.T) {
	_, rec := newRecorded(t)

	ctx1, span1 := StartSpan(context.Background(), "checkpoint")
	ctx2, span2 := StartSpan(ctx1, "phase.build_maps")
	_, span3 := StartSpan(ctx2, "capmap")

	span3.End()
	span2.End()
	span1.End()

	ended := rec.Ended()
	if len(ended) != 3 {
		t.Fatalf("expected 3 ended spans, got %d", len(ended))
	}

	root := trace.SpanContextFromContext(ctx1)
	for _, s := range ended {
		if s.SpanContext().TraceID() != root.TraceID() {
			t.Errorf("span %q has trace id %s, want %s", s.Name(), s.SpanContext().TraceID(), root.TraceID())
		}
	}
	if ended[0].Parent().SpanID() != trace.SpanContextFromContext(ctx2).SpanID() {
		t.Error("grandchild span should be parented to the child span")
	}
}

func TestSpan_RecordError(t *testing.T) {
	_, rec := newRecorded(t)

	_, span := StartSpan(context.Background(), "phase.parallel_copy")
	span.RecordError(nil)
	span.RecordError(errors.New("copy target mismatch"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended[0].Status().Code)
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("expected 1 error event, got %d", len(ended[0].Events()))
	}
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{ServiceName: "svc", Exporter: ExporterStdout, Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, span := StartSpan(context.Background(), "phase.cleanup")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "phase.cleanup") {
		t.Errorf("stdout exporter output should contain the span name, got: %s", buf.String())
	}
}

func TestToAttribute(t *testing.T) {
	tests := []struct {
		value any
		want  attribute.Type
	}{
		{"s", attribute.STRING},
		{true, attribute.BOOL},
		{42, attribute.INT64},
		{int64(42), attribute.INT64},
		{uint64(42), attribute.INT64},
		{uint32(42), attribute.INT64},
		{3.14, attribute.FLOAT64},
		{nil, attribute.STRING},
		{[]int{1}, attribute.STRING},
	}

	for _, tt := range tests {
		if got := toAttribute("k", tt.value).Value.Type(); got != tt.want {
			t.Errorf("toAttribute(%v) type = %v, want %v", tt.value, got, tt.want)
		}
	}
}

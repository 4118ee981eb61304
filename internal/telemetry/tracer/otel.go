package tracer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used for all spans.
const InstrumentationName = "github.com/yndnr/rtcr-go"

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config holds tracer configuration.
type Config struct {
	// ServiceName is recorded as the service.name resource attribute.
	ServiceName string
	// Exporter is one of none, stdout.
	Exporter string
	// Output is the writer for the stdout exporter (defaults to os.Stdout).
	Output io.Writer
	// Processors are extra span processors, used by tests to record spans.
	Processors []sdktrace.SpanProcessor
}

// Provider manages the OpenTelemetry tracer provider.
type Provider struct {
	tp   *sdktrace.TracerProvider
	once sync.Once
	err  error
}

// New creates a tracer provider and installs it as the global provider.
func New(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rtcr"
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	switch cfg.Exporter {
	case "", ExporterNone:
	case ExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		// Synchronous export keeps span output ordered with the cycle logs.
		opts = append(opts, sdktrace.WithSyncer(exp))
	default:
		return nil, fmt.Errorf("unknown trace exporter: %q", cfg.Exporter)
	}

	for _, p := range cfg.Processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// Shutdown flushes and shuts down the tracer provider. Safe to call twice.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.err = p.tp.Shutdown(ctx)
	})
	return p.err
}

// StartSpan starts a new span from the global tracer provider.
func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, s := otel.Tracer(InstrumentationName).Start(ctx, name)
	return ctx, &span{s: s}
}

// Span represents a trace span.
type Span interface {
	End()
	SetAttribute(key string, value any)
	RecordError(err error)
}

type span struct {
	s trace.Span
}

func (s *span) End() {
	s.s.End()
}

func (s *span) SetAttribute(key string, value any) {
	s.s.SetAttributes(toAttribute(key, value))
}

func (s *span) RecordError(err error) {
	if err == nil {
		return
	}
	s.s.RecordError(err)
	s.s.SetStatus(codes.Error, err.Error())
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint64:
		return attribute.Int64(key, int64(v))
	case uint32:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	case nil:
		return attribute.String(key, "")
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

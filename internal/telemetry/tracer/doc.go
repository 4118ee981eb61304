// Package tracer provides tracing for checkpoint cycles.
//
// This package implements OpenTelemetry tracing support:
//
//   - otel.go: tracer provider configuration and span helpers
//
// Every checkpoint cycle is a root span with one child span per phase.
// Exporters:
//
//   - none: spans are created (trace ids reach the logs) but not exported
//   - stdout: spans are written as JSON to the configured writer
package tracer

// Package logger provides structured logging for the checkpoint engine.
//
// This package wraps log/slog:
//
//   - logger.go: Logger interface, configuration, dynamic level
//   - context.go: context propagation of the logger, cycle id, child name, trace id
//   - attrs.go: rendering of capability selectors and addresses in hex
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering, adjustable at runtime (config watcher)
//   - Context propagation so every line of a checkpoint cycle carries its id
package logger

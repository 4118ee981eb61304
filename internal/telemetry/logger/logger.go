package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logging interface used throughout the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger

	// WithContext returns a logger whose records carry ctx. The child,
	// cycle id and trace id found in ctx are added at write time.
	WithContext(ctx context.Context) Logger
}

// Config configures New.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or text. console is an alias of text.
	Format string `koanf:"format"`

	// Output defaults to os.Stderr.
	Output io.Writer `koanf:"-"`

	AddSource bool `koanf:"add_source"`
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// level is shared by every logger built with New so that SetLevel
// takes effect on loggers that were handed out earlier.
var level = new(slog.LevelVar)

// New builds a logger and sets the shared level from cfg.Level.
func New(cfg Config) (Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	lvl, ok := parseLevel(cfg.Level)
	if !ok && cfg.Level != "" {
		return nil, fmt.Errorf("logger: unknown level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return formatAttr(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text", "console":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	level.Set(lvl)
	return &slogLogger{l: slog.New(contextHandler{h}), ctx: context.Background()}, nil
}

// Discard returns a logger that drops every record.
func Discard() Logger {
	return &slogLogger{l: slog.New(slog.DiscardHandler), ctx: context.Background()}
}

// Slog returns a *slog.Logger writing through l, for libraries that
// want one. Loggers not built by this package are bridged record by record.
func Slog(l Logger) *slog.Logger {
	if sl, ok := l.(*slogLogger); ok {
		return sl.l
	}
	return slog.New(bridge{l: l})
}

// SetLevel changes the level of every logger built with New.
// Unknown names are ignored.
func SetLevel(name string) {
	if lvl, ok := parseLevel(name); ok {
		level.Set(lvl)
	}
}

// GetLevel returns the current level name in lower case.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

type slogLogger struct {
	l   *slog.Logger
	ctx context.Context
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Log(s.ctx, slog.LevelDebug, msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Log(s.ctx, slog.LevelInfo, msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Log(s.ctx, slog.LevelWarn, msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Log(s.ctx, slog.LevelError, msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...), ctx: s.ctx}
}

func (s *slogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{l: s.l, ctx: ctx}
}

// contextHandler adds the context-scoped attributes to every record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if name := ChildFromContext(ctx); name != "" {
			r.AddAttrs(slog.String("child", name))
		}
		if id := CycleIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String("cycle_id", id))
		}
		if id := TraceIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String("trace_id", id))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// bridge adapts a foreign Logger to slog.Handler. Groups are flattened.
type bridge struct {
	l     Logger
	attrs []any
}

func (b bridge) Enabled(context.Context, slog.Level) bool { return true }

func (b bridge) Handle(ctx context.Context, r slog.Record) error {
	args := append([]any(nil), b.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		args = append(args, a.Key, a.Value.Any())
		return true
	})
	l := b.l.WithContext(ctx)
	switch {
	case r.Level >= slog.LevelError:
		l.Error(r.Message, args...)
	case r.Level >= slog.LevelWarn:
		l.Warn(r.Message, args...)
	case r.Level >= slog.LevelInfo:
		l.Info(r.Message, args...)
	default:
		l.Debug(r.Message, args...)
	}
	return nil
}

func (b bridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := bridge{l: b.l, attrs: append([]any(nil), b.attrs...)}
	for _, a := range attrs {
		n.attrs = append(n.attrs, a.Key, a.Value.Any())
	}
	return n
}

func (b bridge) WithGroup(string) slog.Handler { return b }

type holder struct{ l Logger }

var defaultLogger atomic.Pointer[holder]

func init() {
	l, _ := New(DefaultConfig())
	defaultLogger.Store(&holder{l: l})
}

// SetDefault replaces the process-wide logger returned by Default.
// A nil logger is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(&holder{l: l})
}

// Default returns the process-wide logger.
func Default() Logger {
	return defaultLogger.Load().l
}

package confloader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "RTCR_"

// Loader layers configuration sources. Later layers win:
// the YAML file, then the environment, then explicit overrides.
type Loader struct {
	mu        sync.Mutex
	envPrefix string
	filePath  string
	overrides overrides
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML file. Empty means environment only.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides sets values keyed by dotted path, e.g. "log.level", that
// win over the file and the environment on every Load. Command-line
// flags end up here.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		for k, v := range values {
			l.overrides.set(k, v)
		}
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every layer afresh and unmarshals into target. Keys absent
// from all layers keep the value target already holds, so callers pass a
// struct filled with defaults. Calling Load again picks up file changes.
func (l *Loader) Load(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := koanf.New(".")
	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}
	if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if len(l.overrides) > 0 {
		if err := k.Load(l.overrides, nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// envKey maps RTCR_CHECKPOINT_PIN_WORKERS to checkpoint.pin_workers:
// the first underscore after the prefix separates section and key.
func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// FilePath returns the configured file path, possibly empty.
func (l *Loader) FilePath() string {
	return l.filePath
}

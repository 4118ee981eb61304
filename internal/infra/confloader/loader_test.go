package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Checkpoint struct {
		Mode       string        `koanf:"mode"`
		Workers    int           `koanf:"workers"`
		PinWorkers bool          `koanf:"pin_workers"`
		Interval   time.Duration `koanf:"interval"`
	} `koanf:"checkpoint"`
	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rtcr.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoader_File(t *testing.T) {
	path := writeConfig(t, `
checkpoint:
  mode: full
  workers: 4
  pin_workers: true
  interval: 250ms
`)
	var cfg testConfig
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c := cfg.Checkpoint
	if c.Mode != "full" || c.Workers != 4 || !c.PinWorkers || c.Interval != 250*time.Millisecond {
		t.Errorf("checkpoint = %+v", c)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := NewLoader(WithConfigFile("/nonexistent/rtcr.yaml")).Load(&cfg); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestLoader_EnvKey(t *testing.T) {
	l := NewLoader()
	tests := []struct {
		env  string
		want string
	}{
		{"RTCR_CHECKPOINT_WORKERS", "checkpoint.workers"},
		{"RTCR_CHECKPOINT_PIN_WORKERS", "checkpoint.pin_workers"},
		{"RTCR_ARCHIVE_MAX_RATE_BYTES_PER_SEC", "archive.max_rate_bytes_per_sec"},
		{"RTCR_LOG_LEVEL", "log.level"},
	}
	for _, tt := range tests {
		if got := l.envKey(tt.env); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoader_EnvCustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_METRICS_ADDR", ":9090")
	t.Setenv("RTCR_METRICS_ADDR", ":1")

	var cfg testConfig
	if err := NewLoader(WithEnvPrefix("MYAPP_")).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics.addr = %q, want :9090", cfg.Metrics.Addr)
	}
}

func TestLoader_LayerPriority(t *testing.T) {
	path := writeConfig(t, `
checkpoint:
  mode: full
  workers: 2
log:
  level: warn
`)
	t.Setenv("RTCR_CHECKPOINT_WORKERS", "6")
	t.Setenv("RTCR_LOG_LEVEL", "error")

	var cfg testConfig
	cfg.Checkpoint.Interval = time.Minute
	cfg.Metrics.Addr = "127.0.0.1:9464"

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"log.level": "debug"}))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Checkpoint.Mode != "full" {
		t.Errorf("Mode = %q, want full from the file", cfg.Checkpoint.Mode)
	}
	if cfg.Checkpoint.Workers != 6 {
		t.Errorf("Workers = %d, want 6 from the environment", cfg.Checkpoint.Workers)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug from the override", cfg.Log.Level)
	}
	if cfg.Checkpoint.Interval != time.Minute || cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("preset values lost: %+v", cfg)
	}
}

func TestLoader_LoadAgainSeesFileChanges(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\ncheckpoint:\n  workers: 3\n")
	l := NewLoader(WithConfigFile(path), WithOverrides(map[string]any{"checkpoint.mode": "full"}))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("Log.Level = %q, want info", cfg.Log.Level)
	}

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var next testConfig
	if err := l.Load(&next); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if next.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", next.Log.Level)
	}
	if next.Checkpoint.Workers != 0 {
		t.Errorf("Workers = %d, a key removed from the file must not linger", next.Checkpoint.Workers)
	}
	if next.Checkpoint.Mode != "full" {
		t.Errorf("Mode = %q, overrides must survive a reload", next.Checkpoint.Mode)
	}
}

func TestOverrides_Set(t *testing.T) {
	var o overrides
	o.set("checkpoint.mode", "full")
	o.set("checkpoint.workers", 2)
	o.set("top", true)

	cp, ok := o["checkpoint"].(map[string]any)
	if !ok || cp["mode"] != "full" || cp["workers"] != 2 || o["top"] != true {
		t.Errorf("overrides = %#v", o)
	}
	if _, err := o.ReadBytes(); err == nil {
		t.Error("ReadBytes() should fail")
	}
}

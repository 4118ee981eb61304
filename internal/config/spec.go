package config

import "time"

// Checkpoint engine modes.
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// Config is the root configuration of rtcr-checkpointd.
type Config struct {
	Checkpoint CheckpointSection `koanf:"checkpoint"`
	Memory     MemorySection     `koanf:"memory"`
	Archive    ArchiveSection    `koanf:"archive"`
	Metrics    MetricsSection    `koanf:"metrics"`
	Tracing    TracingSection    `koanf:"tracing"`
	Log        LogSection        `koanf:"log"`
}

// CheckpointSection configures the engine and its schedule.
type CheckpointSection struct {
	// Mode selects the engine: incremental or full.
	Mode string `koanf:"mode"`

	// Workers is the copy pool size. Zero copies inline on the cycle's goroutine.
	Workers int `koanf:"workers"`

	// PinWorkers binds each copy worker to one CPU (linux only).
	PinWorkers bool `koanf:"pin_workers"`

	// Interval between scheduled cycles.
	Interval time.Duration `koanf:"interval"`

	// Child names the checkpointed child in logs and metrics.
	Child string `koanf:"child"`

	// WorkloadTick is how often the simulated child advances.
	WorkloadTick time.Duration `koanf:"workload_tick"`
}

// MemorySection configures the memory service backing copies.
type MemorySection struct {
	// QuotaBytes caps live dataspace bytes. Zero means unlimited.
	QuotaBytes uint64 `koanf:"quota_bytes"`
}

// ArchiveSection configures persistence of committed snapshots.
type ArchiveSection struct {
	Enabled        bool   `koanf:"enabled"`
	DataDir        string `koanf:"data_dir"`
	InMemory       bool   `koanf:"in_memory"`
	RetentionCount int    `koanf:"retention_count"`
	RetentionDays  int    `koanf:"retention_days"`

	// MaxRateBytesPerSec limits blob writes. Zero means unlimited.
	MaxRateBytesPerSec int64 `koanf:"max_rate_bytes_per_sec"`

	// GCInterval is the value log GC period. Zero disables periodic GC.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`
}

// TracingSection configures OpenTelemetry export.
type TracingSection struct {
	// Exporter is none or stdout.
	Exporter string `koanf:"exporter"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

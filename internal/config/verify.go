package config

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// Verify validates the configuration. With the archive enabled on disk it
// creates the data directory.
func Verify(cfg *Config) error {
	return errors.Join(
		verifyCheckpoint(&cfg.Checkpoint),
		verifyArchive(&cfg.Archive),
		verifyMetrics(&cfg.Metrics),
		verifyTracing(&cfg.Tracing),
		verifyLog(&cfg.Log),
	)
}

func verifyCheckpoint(cfg *CheckpointSection) error {
	switch cfg.Mode {
	case ModeIncremental, ModeFull:
	default:
		return fmt.Errorf("checkpoint.mode must be %q or %q, got %q", ModeIncremental, ModeFull, cfg.Mode)
	}
	if cfg.Workers < 0 {
		return errors.New("checkpoint.workers must not be negative")
	}
	if cfg.Interval <= 0 {
		return errors.New("checkpoint.interval must be positive")
	}
	if cfg.WorkloadTick <= 0 {
		return errors.New("checkpoint.workload_tick must be positive")
	}
	if cfg.Child == "" {
		return errors.New("checkpoint.child is required")
	}
	return nil
}

func verifyArchive(cfg *ArchiveSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.RetentionCount < 1 {
		return errors.New("archive.retention_count must be at least 1")
	}
	if cfg.RetentionDays < 0 {
		return errors.New("archive.retention_days must not be negative")
	}
	if cfg.MaxRateBytesPerSec < 0 {
		return errors.New("archive.max_rate_bytes_per_sec must not be negative")
	}
	if cfg.GCInterval < 0 {
		return errors.New("archive.gc_interval must not be negative")
	}
	if cfg.InMemory {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("archive.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create archive directory: %w", err)
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if cfg.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr: %w", err)
	}
	return nil
}

func verifyTracing(cfg *TracingSection) error {
	switch cfg.Exporter {
	case "", "none", "stdout":
		return nil
	}
	return fmt.Errorf("tracing.exporter must be none or stdout, got %q", cfg.Exporter)
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
	return nil
}

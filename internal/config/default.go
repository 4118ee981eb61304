package config

import "time"

// Default configuration values.
const (
	DefaultMode         = ModeIncremental
	DefaultWorkers      = 4
	DefaultInterval     = 5 * time.Second
	DefaultChild        = "sheep_counter"
	DefaultWorkloadTick = 100 * time.Millisecond

	DefaultQuotaBytes = 256 << 20

	DefaultDataDir        = "/var/lib/rtcr/archive"
	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
	DefaultGCInterval     = 10 * time.Minute

	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultExporter    = "none"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Checkpoint: CheckpointSection{
			Mode:         DefaultMode,
			Workers:      DefaultWorkers,
			Interval:     DefaultInterval,
			Child:        DefaultChild,
			WorkloadTick: DefaultWorkloadTick,
		},
		Memory: MemorySection{
			QuotaBytes: DefaultQuotaBytes,
		},
		Archive: ArchiveSection{
			Enabled:        false,
			DataDir:        DefaultDataDir,
			RetentionCount: DefaultRetentionCount,
			RetentionDays:  DefaultRetentionDays,
			GCInterval:     DefaultGCInterval,
		},
		Metrics: MetricsSection{
			Addr: DefaultMetricsAddr,
		},
		Tracing: TracingSection{
			Exporter: DefaultExporter,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

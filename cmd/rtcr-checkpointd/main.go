package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yndnr/rtcr-go/internal/config"
	"github.com/yndnr/rtcr-go/internal/infra/buildinfo"
	"github.com/yndnr/rtcr-go/internal/infra/confloader"
	"github.com/yndnr/rtcr-go/internal/infra/shutdown"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		importFile  = flag.String("import", "", "Replace the snapshot archive with a dump from /archive/export before starting")
		_           = flag.String("log-level", "", "Override log.level")
		_           = flag.String("mode", "", "Override checkpoint.mode (incremental or full)")
		_           = flag.String("archive-dir", "", "Override archive.data_dir")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("rtcr-checkpointd %s\n", buildinfo.Get().String())
		return nil
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(*configFile),
		confloader.WithOverrides(flagOverrides()))
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	log.Info("starting rtcr-checkpointd", append(buildinfo.Get().LogArgs(), "config", *configFile)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}

	if *importFile != "" {
		if err := d.importArchive(ctx, *importFile); err != nil {
			_ = d.close(ctx)
			return err
		}
	}

	sh := shutdown.NewHandler(shutdownTimeout, log)
	if err := d.start(ctx, sh); err != nil {
		_ = sh.Shutdown()
		return err
	}

	if *configFile != "" {
		w, err := watchConfig(loader, log)
		if err != nil {
			log.Warn("configuration watcher disabled", "error", err)
		} else {
			sh.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	log.Info("daemon started, press Ctrl+C to stop")
	if err := sh.Wait(ctx); err != nil {
		return err
	}
	log.Info("daemon stopped gracefully")
	return nil
}

// overrideFlags maps flags to the configuration keys they override.
var overrideFlags = map[string]string{
	"log-level":   "log.level",
	"mode":        "checkpoint.mode",
	"archive-dir": "archive.data_dir",
}

// flagOverrides returns the override flags given on the command line.
func flagOverrides() map[string]any {
	out := make(map[string]any)
	flag.Visit(func(f *flag.Flag) {
		if key, ok := overrideFlags[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

// loadConfig layers the file, the environment and flag overrides over the
// defaults and validates the result.
func loadConfig(loader *confloader.Loader) (*config.Config, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig re-applies log.level whenever the configuration file changes.
// Other settings need a restart.
func watchConfig(loader *confloader.Loader, log logger.Logger) (*confloader.Watcher, error) {
	return confloader.Watch(loader.FilePath(),
		func(string) { reloadLogLevel(loader, log) },
		confloader.WithWatcherLogger(log))
}

func reloadLogLevel(loader *confloader.Loader, log logger.Logger) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		log.Warn("configuration reload failed", "error", err)
		return
	}
	if err := config.Verify(cfg); err != nil {
		log.Warn("reloaded configuration is invalid, keeping current settings", "error", err)
		return
	}
	if old := logger.GetLevel(); old != cfg.Log.Level {
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level changed", "from", old, "to", cfg.Log.Level)
	}
}

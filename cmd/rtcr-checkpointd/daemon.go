package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/yndnr/rtcr-go/internal/checkpoint"
	"github.com/yndnr/rtcr-go/internal/child/sim"
	"github.com/yndnr/rtcr-go/internal/config"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/fullcopy"
	"github.com/yndnr/rtcr-go/internal/infra/buildinfo"
	"github.com/yndnr/rtcr-go/internal/infra/shutdown"
	"github.com/yndnr/rtcr-go/internal/server/httpserver"
	"github.com/yndnr/rtcr-go/internal/storage"
	"github.com/yndnr/rtcr-go/internal/storage/memory"
	"github.com/yndnr/rtcr-go/internal/storage/snapshot"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
	"github.com/yndnr/rtcr-go/internal/telemetry/metric"
	"github.com/yndnr/rtcr-go/internal/telemetry/tracer"
)

// daemon holds the wired components of one rtcr-checkpointd process.
type daemon struct {
	cfg *config.Config
	log logger.Logger

	metrics  *metric.Registry
	tracer   *tracer.Provider
	mem      *memory.Store
	child    *sim.Child
	workload *sim.SheepCounter
	engine   checkpoint.Engine
	kv       *storage.Badger
	archive  *snapshot.Archive
	sched    *checkpoint.Scheduler
	http     *httpserver.Server
}

// newDaemon builds every component without starting background work.
func newDaemon(ctx context.Context, cfg *config.Config, log logger.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log, metrics: metric.NewRegistry()}

	if err := d.metrics.RegisterBuildInfo(buildinfo.Get().Labels()); err != nil {
		return nil, fmt.Errorf("register build info: %w", err)
	}

	tp, err := tracer.New(tracer.Config{ServiceName: "rtcr-checkpointd", Exporter: cfg.Tracing.Exporter})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	d.tracer = tp

	d.mem = memory.New(memory.WithQuota(cfg.Memory.QuotaBytes))
	if err := d.metrics.Register(metric.NewCollector(func() metric.MemoryStats {
		s := d.mem.Stats()
		return metric.MemoryStats{Dataspaces: s.Dataspaces, Mapped: s.Mapped, UsedBytes: s.UsedBytes, QuotaBytes: s.QuotaBytes}
	})); err != nil {
		return nil, fmt.Errorf("register memory collector: %w", err)
	}

	d.child = sim.New(d.mem, sim.WithName(cfg.Checkpoint.Child))
	if d.workload, err = sim.BootSheepCounter(ctx, d.child); err != nil {
		return nil, fmt.Errorf("boot workload: %w", err)
	}

	d.engine = newEngine(cfg, d.child, d.mem, d.metrics, log)

	if cfg.Archive.Enabled {
		if err := d.openArchive(log); err != nil {
			return nil, err
		}
	}

	d.sched = checkpoint.NewScheduler(d.engine, cfg.Checkpoint.Interval, d.sink, log)
	return d, nil
}

// newEngine selects the engine named by checkpoint.mode.
func newEngine(cfg *config.Config, c *sim.Child, mem *memory.Store, m *metric.Registry, log logger.Logger) checkpoint.Engine {
	if cfg.Checkpoint.Mode == config.ModeFull {
		return fullcopy.New(c, mem,
			fullcopy.WithName(cfg.Checkpoint.Child),
			fullcopy.WithLogger(log),
			fullcopy.WithMetrics(m))
	}
	return checkpoint.New(c, mem,
		checkpoint.WithName(cfg.Checkpoint.Child),
		checkpoint.WithWorkers(cfg.Checkpoint.Workers),
		checkpoint.WithPinWorkers(cfg.Checkpoint.PinWorkers),
		checkpoint.WithLogger(log),
		checkpoint.WithMetrics(m))
}

func (d *daemon) openArchive(log logger.Logger) error {
	ac := d.cfg.Archive

	kvCfg := storage.DefaultKVConfig(ac.DataDir)
	kvCfg.InMemory = ac.InMemory
	kvCfg.GCInterval = ac.GCInterval
	kv, err := storage.OpenBadger(kvCfg, log)
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}
	if err := kv.RegisterMetrics(d.metrics.Registerer()); err != nil {
		_ = kv.Close()
		return fmt.Errorf("register archive metrics: %w", err)
	}

	archive, err := snapshot.New(kv, snapshot.Config{
		RetentionCount: ac.RetentionCount,
		RetentionDays:  ac.RetentionDays,
		MaxBytesPerSec: ac.MaxRateBytesPerSec,
	}, snapshot.WithLogger(log), snapshot.WithMetrics(d.metrics))
	if err != nil {
		_ = kv.Close()
		return fmt.Errorf("open archive: %w", err)
	}
	d.kv, d.archive = kv, archive
	return nil
}

// importArchive replaces the archive's content with the dump at path.
func (d *daemon) importArchive(ctx context.Context, path string) error {
	if d.archive == nil {
		return errors.New("import requires archive.enabled")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive dump: %w", err)
	}
	defer f.Close()
	if err := d.archive.Import(ctx, f); err != nil {
		return fmt.Errorf("import archive: %w", err)
	}
	d.log.Info("archive imported", "path", path)
	return nil
}

// close releases what newDaemon opened, for a daemon that never started.
func (d *daemon) close(ctx context.Context) error {
	errs := []error{d.engine.Close(ctx)}
	if d.kv != nil {
		errs = append(errs, d.kv.Close())
	}
	errs = append(errs, d.tracer.Shutdown(ctx))
	return errors.Join(errs...)
}

// sink archives a committed snapshot while its copies are still current.
func (d *daemon) sink(ctx context.Context, snap *domain.Snapshot) error {
	if d.archive == nil {
		return nil
	}
	_, err := d.archive.Save(ctx, snap, d.mem)
	return err
}

// start launches the workload, the scheduler and the metrics server and
// registers their shutdown hooks. The first checkpoint runs immediately.
func (d *daemon) start(ctx context.Context, sh *shutdown.Handler) error {
	sh.OnShutdown("tracer", d.tracer.Shutdown)
	sh.OnShutdown("engine", d.engine.Close)
	if d.kv != nil {
		sh.OnShutdown("archive store", func(context.Context) error { return d.kv.Close() })
	}

	if d.cfg.Metrics.Addr != "" {
		if err := d.serveStatus(sh); err != nil {
			return err
		}
	}

	wctx, stopWorkload := context.WithCancel(ctx)
	done := make(chan struct{})
	go d.runWorkload(wctx, done)
	sh.OnShutdown("workload", func(ctx context.Context) error {
		stopWorkload()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if _, err := d.sched.RunOnce(ctx); err != nil {
		d.log.Warn("initial checkpoint failed", "error", err)
	}
	if err := d.sched.Start(ctx); err != nil {
		return err
	}
	sh.OnShutdown("scheduler", func(context.Context) error {
		d.sched.Stop()
		return nil
	})
	return nil
}

func (d *daemon) serveStatus(sh *shutdown.Handler) error {
	cfg := httpserver.Config{
		Engine:  d.engine,
		Metrics: d.metrics.Handler(),
		Logger:  d.log,
	}
	if d.archive != nil {
		cfg.Archive = d.archive
	}
	d.http = httpserver.New(d.cfg.Metrics.Addr, httpserver.NewHandler(cfg), d.log)
	if err := d.http.Start(); err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	sh.OnShutdown("status server", d.http.Shutdown)
	return nil
}

// runWorkload advances the sheep counter until ctx is done. Ticks that hit
// a paused child are skipped.
func (d *daemon) runWorkload(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.cfg.Checkpoint.WorkloadTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := d.workload.Tick(ctx)
			switch {
			case err == nil, errors.Is(err, sim.ErrPaused):
			default:
				d.log.Warn("workload tick failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

// ErrSchedulerRunning is returned by Start on a running scheduler.
var ErrSchedulerRunning = errors.New("checkpoint: scheduler already running")

// Sink receives every committed snapshot, for example to archive it.
// It runs before the next cycle starts, while copy handles still hold
// the snapshot's content.
type Sink func(ctx context.Context, snap *domain.Snapshot) error

// Scheduler runs checkpoint cycles periodically.
type Scheduler struct {
	engine   Engine
	interval time.Duration
	sink     Sink
	logger   logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}

	runs     atomic.Uint64
	failures atomic.Uint64
}

// NewScheduler creates a stopped scheduler. A nil sink discards snapshots.
func NewScheduler(engine Engine, interval time.Duration, sink Sink, l logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Default()
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		sink:     sink,
		logger:   l,
	}
}

// RunOnce runs one cycle and hands the snapshot to the sink. A sink error
// is returned together with the committed snapshot.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.Snapshot, error) {
	s.runs.Add(1)
	snap, err := s.engine.Checkpoint(ctx)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}
	if s.sink != nil {
		if err := s.sink(ctx, snap); err != nil {
			s.failures.Add(1)
			return snap, fmt.Errorf("sink snapshot %s: %w", snap.ID, err)
		}
	}
	return snap, nil
}

// Start runs cycles every interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return domain.ErrInvalidArgument.WithDetails("checkpoint interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.stopCh, s.doneCh)
	s.logger.Info("checkpoint scheduler started", "interval", s.interval)
	return nil
}

// Stop stops the loop and waits for a running cycle and its sink to
// finish. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done, cancel := s.doneCh, s.cancel
	s.mu.Unlock()

	<-done
	cancel()
	s.logger.Info("checkpoint scheduler stopped",
		"runs", s.runs.Load(),
		"failures", s.failures.Load())
}

// Counters returns how many cycles ran and how many failed.
func (s *Scheduler) Counters() (runs, failures uint64) {
	return s.runs.Load(), s.failures.Load()
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap, err := s.RunOnce(ctx)
			switch {
			case err != nil && snap == nil:
				s.logger.Error("scheduled checkpoint failed", "error", err)
			case err != nil:
				s.logger.Warn("snapshot sink failed", "snapshot", snap.ID, "error", err)
			}

		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

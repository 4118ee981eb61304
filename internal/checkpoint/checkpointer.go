package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
	"github.com/yndnr/rtcr-go/internal/telemetry/metric"
	"github.com/yndnr/rtcr-go/internal/telemetry/tracer"
	"github.com/yndnr/rtcr-go/pkg/marksweep"
)

// Engine is implemented by both checkpoint engines.
type Engine interface {
	// Checkpoint runs one cycle and returns the committed snapshot.
	Checkpoint(ctx context.Context) (*domain.Snapshot, error)

	// Snapshot returns the last committed snapshot or domain.ErrNoSnapshot.
	Snapshot() (*domain.Snapshot, error)

	// Close frees every copy the engine owns.
	Close(ctx context.Context) error
}

// Stats are cumulative engine counters.
type Stats struct {
	Cycles       uint64
	Failures     uint64
	Processed    uint64
	Dropped      uint64
	BytesCopied  uint64
	LastDuration time.Duration
}

// Checkpointer is the incremental checkpoint engine of one child.
type Checkpointer struct {
	mu     sync.Mutex
	target child.Target
	opts   options
	pool   *pool

	// Persistent across cycles, owned by the cycle holding mu.
	state  *domain.State
	caps   capMap
	resync bool
	cycle  uint64
	closed bool

	snapMu    sync.RWMutex
	committed *domain.Snapshot

	failures atomic.Uint64
	lastDur  atomic.Int64
}

var _ Engine = (*Checkpointer)(nil)

// New creates an engine for target that allocates copies from mem.
func New(target child.Target, mem child.Memory, opts ...Option) *Checkpointer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Checkpointer{
		target: target,
		opts:   o,
		pool: &pool{
			workers: o.workers,
			pin:     o.pin,
			mem:     mem,
			metrics: o.metrics,
		},
		state: domain.NewState(),
		caps:  make(capMap),
	}
}

// cycleState holds what one cycle builds and drops again in cleanup.
type cycleState struct {
	id      string
	exclude map[domain.DataspaceID]struct{}
	index   memoryIndex
	tasks   []domain.CopyTask
	snap    *domain.Snapshot
}

// Checkpoint runs one cycle. The child is resumed on every return path.
// On failure the committed snapshot is withdrawn and the next cycle copies
// every sub-region of every managed dataspace.
func (c *Checkpointer) Checkpoint(ctx context.Context) (snap *domain.Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, domain.ErrCheckpointFailed.WithDetails("engine closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Once the child is paused the cycle runs to completion.
	ctx = context.WithoutCancel(ctx)

	id, err := domain.NewSnapshotID()
	if err != nil {
		return nil, err
	}
	c.cycle++

	ctx = logger.WithCycle(ctx, c.opts.logger, c.opts.name, id)
	ctx, span := tracer.StartSpan(ctx, "checkpoint")
	defer span.End()
	span.SetAttribute("cycle", c.cycle)
	span.SetAttribute("resync", c.resync)

	start := c.opts.now()
	cy := &cycleState{id: id}
	var pausedAt time.Time

	defer func() {
		rerr := c.phase(ctx, PhaseResume, func(ctx context.Context) error {
			return c.target.Resume(ctx)
		})
		if !pausedAt.IsZero() {
			c.opts.metrics.ObservePause(c.opts.now().Sub(pausedAt).Seconds())
		}
		if rerr != nil {
			rerr = domain.ErrResumeFailed.WithCause(rerr)
			if err == nil {
				err = rerr
			} else {
				logger.L(ctx).Error("resume after failed cycle", "error", rerr)
			}
		}

		dur := c.opts.now().Sub(start)
		c.lastDur.Store(int64(dur))
		if err != nil {
			c.withdraw(ctx, err)
			span.RecordError(err)
			c.opts.metrics.RecordCycle(metric.ResultFailed, dur.Seconds(), 0)
			snap, err = nil, domain.ErrCheckpointFailed.WithCause(err)
			return
		}

		c.commit(cy.snap)
		c.opts.metrics.RecordCycle(metric.ResultOK, dur.Seconds(), c.opts.now().Unix())
		logger.L(ctx).Info("checkpoint committed",
			"cycle", c.cycle,
			"duration", dur,
			"tasks", len(cy.tasks))
		snap = cy.snap.Clone()
	}()

	err = c.phase(ctx, PhasePause, func(ctx context.Context) error {
		if err := c.target.Pause(ctx); err != nil {
			return domain.ErrPauseFailed.WithCause(err)
		}
		pausedAt = c.opts.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	steps := []struct {
		p  Phase
		fn func(context.Context) error
	}{
		{PhaseBuildMaps, func(ctx context.Context) error { return c.buildMaps(ctx, cy) }},
		{PhaseParallelPrepare, func(ctx context.Context) error { return c.prepare(ctx, cy) }},
		{PhaseBuildManagedIndex, func(ctx context.Context) error {
			cy.index = buildIndex(c.state, c.target.RAM())
			return nil
		}},
		{PhaseDetachDirtyTracking, func(ctx context.Context) error {
			var dirty int
			cy.tasks, dirty = detachDirty(cy.index, c.resync)
			c.opts.metrics.SetDirtyRegions(dirty)
			logger.L(ctx).Debug("dirty tracking detached",
				"plain", len(cy.index.plain),
				"managed", len(cy.index.managed),
				"dirty", dirty,
				"tasks", len(cy.tasks))
			return nil
		}},
		{PhaseParallelCopy, func(ctx context.Context) error {
			jobs := make([]job, len(cy.tasks))
			for i, t := range cy.tasks {
				jobs[i] = copyJob(t)
			}
			return c.pool.run(ctx, jobs)
		}},
		{PhaseCleanup, func(ctx context.Context) error {
			cy.snap = c.assemble(cy)
			cy.exclude, cy.index = nil, memoryIndex{}
			return nil
		}},
	}
	for _, s := range steps {
		if err = c.phase(ctx, s.p, s.fn); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// phase runs fn as phase p with a span, the phase hook and a duration
// measurement. The resume phase runs fn even when the hook fails.
func (c *Checkpointer) phase(ctx context.Context, p Phase, fn func(context.Context) error) error {
	ctx, span := tracer.StartSpan(ctx, "checkpoint."+p.String())
	defer span.End()
	start := c.opts.now()

	var err error
	if c.opts.hook != nil {
		err = c.opts.hook(ctx, p)
	}
	switch {
	case err == nil:
		err = fn(ctx)
	case p == PhaseResume:
		err = errors.Join(err, fn(ctx))
	}

	d := c.opts.now().Sub(start)
	c.opts.metrics.ObservePhase(p.String(), d.Seconds())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", p, err)
	}
	logger.L(ctx).Debug("phase done", "phase", p.String(), "duration", d)
	return nil
}

func (c *Checkpointer) buildMaps(ctx context.Context, cy *cycleState) error {
	st, err := c.caps.rebuild(ctx, c.target)
	if err != nil {
		return err
	}
	cy.exclude = ExclusionSet(c.target)
	c.opts.metrics.SetCapMapSize(len(c.caps))
	logger.L(ctx).Debug("capability map rebuilt",
		"entries", len(c.caps),
		"created", st.Created,
		"released", st.Released,
		"excluded", len(cy.exclude))
	return nil
}

// prepare mirrors the live sessions on two helpers: one owns State.RAM and
// copy allocation, the other every remaining kind.
func (c *Checkpointer) prepare(ctx context.Context, cy *cycleState) error {
	ram := &ramSync{
		mem:     c.pool.mem,
		caps:    c.caps,
		exclude: cy.exclude,
	}
	other := &otherSync{caps: c.caps}

	err := c.pool.run(ctx, []job{
		{kind: JobPrepareMemory, run: func(ctx context.Context) error {
			ram.ctx = ctx
			return ram.run(c.state.RAM, c.target.RAM())
		}},
		{kind: JobPrepareOther, run: func(ctx context.Context) error {
			other.ctx = ctx
			other.run(c.state, c.target)
			return nil
		}},
	})
	if err != nil {
		return err
	}

	for _, k := range domain.Kinds {
		c.opts.metrics.SetStoredSessions(k.String(), c.state.Count(k))
	}
	logger.L(ctx).Debug("sessions mirrored",
		"ram_created", ram.stats.Created,
		"ram_released", ram.stats.Released,
		"other_created", other.stats.Created,
		"other_released", other.stats.Released)
	return nil
}

func (c *Checkpointer) assemble(cy *cycleState) *domain.Snapshot {
	return &domain.Snapshot{
		ID:      cy.id,
		Cycle:   c.cycle,
		TakenAt: c.opts.now(),
		Mode:    domain.ModeIncremental,
		State:   c.state.Clone(),
		CapMap:  c.caps.sorted(),
		Memory:  c.state.CopyHandles(),
	}
}

func (c *Checkpointer) commit(s *domain.Snapshot) {
	c.resync = false
	c.snapMu.Lock()
	c.committed = s
	c.snapMu.Unlock()
}

func (c *Checkpointer) withdraw(ctx context.Context, cause error) {
	c.failures.Add(1)
	c.resync = true
	c.snapMu.Lock()
	c.committed = nil
	c.snapMu.Unlock()
	logger.L(ctx).Error("checkpoint failed", "cycle", c.cycle, "error", cause)
}

// Snapshot returns a deep copy of the last committed snapshot.
func (c *Checkpointer) Snapshot() (*domain.Snapshot, error) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.committed == nil {
		return nil, domain.ErrNoSnapshot
	}
	return c.committed.Clone(), nil
}

// Stats returns cumulative counters.
func (c *Checkpointer) Stats() Stats {
	c.mu.Lock()
	cycles := c.cycle
	c.mu.Unlock()
	return Stats{
		Cycles:       cycles,
		Failures:     c.failures.Load(),
		Processed:    c.pool.stats.processed.Load(),
		Dropped:      c.pool.stats.dropped.Load(),
		BytesCopied:  c.pool.stats.bytes.Load(),
		LastDuration: time.Duration(c.lastDur.Load()),
	}
}

// Close frees every copy dataspace and withdraws the snapshot. Further
// cycles fail.
func (c *Checkpointer) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, s := range c.state.RAM {
		marksweep.Clear(s.Dataspaces, func(_ domain.Badge, sd *domain.StoredDataspace) {
			if sd.Copy == 0 {
				return
			}
			if err := c.pool.mem.Free(ctx, sd.Copy); err != nil {
				errs = append(errs, err)
			}
		})
	}
	c.state = domain.NewState()
	c.snapMu.Lock()
	c.committed = nil
	c.snapMu.Unlock()
	return errors.Join(errs...)
}

package fullcopy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/rtcr-go/internal/checkpoint"
	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
	"github.com/yndnr/rtcr-go/internal/telemetry/metric"
	"github.com/yndnr/rtcr-go/internal/telemetry/tracer"
	"github.com/yndnr/rtcr-go/pkg/marksweep"
)

// Option configures a Copier.
type Option func(*Copier)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Copier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m checkpoint.Metrics) Option {
	return func(c *Copier) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithName sets the child's name used in logs.
func WithName(name string) Option {
	return func(c *Copier) { c.name = name }
}

// dest is the copy shared by every region attaching the same source.
type dest struct {
	id   domain.DataspaceID
	refs int
}

// regionSet mirrors the attachments of one region map.
type regionSet map[domain.RegionKey]*domain.CopiedRegion

// Copier is the full-copy engine of one child.
type Copier struct {
	mu      sync.Mutex
	target  child.Target
	mem     child.Memory
	name    string
	logger  logger.Logger
	metrics checkpoint.Metrics

	stack   regionSet
	linker  regionSet
	space   regionSet
	threads map[domain.Badge]*domain.CopiedThread
	dests   map[domain.DataspaceID]*dest

	cycle  uint64
	closed bool

	snapMu    sync.RWMutex
	committed *domain.Snapshot
}

var _ checkpoint.Engine = (*Copier)(nil)

// New creates a full-copy engine for target that allocates copies from mem.
func New(target child.Target, mem child.Memory, opts ...Option) *Copier {
	c := &Copier{
		target:  target,
		mem:     mem,
		name:    "child",
		logger:  logger.Default(),
		metrics: checkpoint.DiscardMetrics(),
		stack:   make(regionSet),
		linker:  make(regionSet),
		space:   make(regionSet),
		threads: make(map[domain.Badge]*domain.CopiedThread),
		dests:   make(map[domain.DataspaceID]*dest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checkpoint runs one full-copy cycle. The child is resumed on every
// return path and a failed cycle withdraws the committed snapshot.
func (c *Copier) Checkpoint(ctx context.Context) (snap *domain.Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, domain.ErrCheckpointFailed.WithDetails("engine closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	id, err := domain.NewSnapshotID()
	if err != nil {
		return nil, err
	}
	c.cycle++

	ctx = logger.WithCycle(ctx, c.logger, c.name, id)
	ctx, span := tracer.StartSpan(ctx, "fullcopy")
	defer span.End()

	start := time.Now()
	var built *domain.Snapshot

	defer func() {
		if rerr := c.target.Resume(ctx); rerr != nil {
			rerr = domain.ErrResumeFailed.WithCause(rerr)
			if err == nil {
				err = rerr
			} else {
				logger.L(ctx).Error("resume after failed cycle", "error", rerr)
			}
		}
		dur := time.Since(start)
		c.metrics.ObservePause(dur.Seconds())

		if err != nil {
			span.RecordError(err)
			c.setCommitted(nil)
			c.metrics.RecordCycle(metric.ResultFailed, dur.Seconds(), 0)
			logger.L(ctx).Error("full copy failed", "cycle", c.cycle, "error", err)
			snap, err = nil, domain.ErrCheckpointFailed.WithCause(err)
			return
		}
		c.setCommitted(built)
		c.metrics.RecordCycle(metric.ResultOK, dur.Seconds(), time.Now().Unix())
		logger.L(ctx).Info("full copy committed", "cycle", c.cycle, "duration", dur, "copies", len(c.dests))
		snap = built.Clone()
	}()

	if err := c.target.Pause(ctx); err != nil {
		return nil, domain.ErrPauseFailed.WithCause(err)
	}

	pds := c.target.PD()
	if len(pds) == 0 {
		return nil, domain.ErrStaleReference.WithDetails("child has no pd session")
	}
	pd := pds[0]

	managed := make(map[domain.DataspaceID]*child.ManagedObject)
	for _, s := range c.target.RAM() {
		for _, ds := range s.Dataspaces {
			if m, ok := s.Managed(ds.ID); ok {
				managed[ds.ID] = m
			}
		}
	}

	// The stack and linker areas are attached into the address space and
	// back region maps, so the exclusion set drops them from that walk.
	exclude := checkpoint.ExclusionSet(c.target)
	var space []*child.AttachedRegion
	if pd.AddressSpace != nil {
		for _, r := range pd.AddressSpace.Regions {
			if _, ok := exclude[r.DS]; !ok {
				space = append(space, r)
			}
		}
	}

	sets := []struct {
		name string
		set  regionSet
		live []*child.AttachedRegion
	}{
		{"stack", c.stack, regions(pd.StackArea)},
		{"linker", c.linker, regions(pd.LinkerArea)},
		{"address_space", c.space, space},
	}
	for _, s := range sets {
		if err := c.syncSet(ctx, s.set, s.live, managed); err != nil {
			return nil, fmt.Errorf("mirror %s: %w", s.name, err)
		}
	}

	if err := c.copyAll(ctx, managed); err != nil {
		return nil, err
	}
	c.copyThreads()

	caps, err := c.target.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("read capability space: %w", err)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Badge < caps[j].Badge })

	built = &domain.Snapshot{
		ID:      id,
		Cycle:   c.cycle,
		TakenAt: time.Now(),
		Mode:    domain.ModeFull,
		CapMap:  caps,
		Image: &domain.Image{
			Stack:        c.stack.sorted(),
			Linker:       c.linker.sorted(),
			AddressSpace: c.space.sorted(),
			Threads:      c.sortedThreads(),
		},
	}
	return nil, nil
}

func regions(rm *child.RegionMap) []*child.AttachedRegion {
	if rm == nil {
		return nil
	}
	return rm.Regions
}

func (c *Copier) syncSet(ctx context.Context, set regionSet, live []*child.AttachedRegion, managed map[domain.DataspaceID]*child.ManagedObject) error {
	_, err := marksweep.Sync(set, live, marksweep.Funcs[domain.RegionKey, *child.AttachedRegion, *domain.CopiedRegion]{
		Key: (*child.AttachedRegion).Key,
		Construct: func(r *child.AttachedRegion) (*domain.CopiedRegion, error) {
			id, err := c.acquire(ctx, r.DS, managed[r.DS])
			if err != nil {
				return nil, err
			}
			_, isManaged := managed[r.DS]
			return &domain.CopiedRegion{
				DSBadge: r.DSBadge,
				DS:      r.DS,
				Copy:    id,
				RelAddr: r.RelAddr,
				Size:    r.Size,
				Managed: isManaged,
			}, nil
		},
		Update: func(cr *domain.CopiedRegion, r *child.AttachedRegion) error {
			cr.DSBadge = r.DSBadge
			cr.Size = r.Size
			_, cr.Managed = managed[r.DS]
			return nil
		},
		Release: func(_ domain.RegionKey, cr *domain.CopiedRegion) {
			c.release(ctx, cr.DS)
		},
	})
	return err
}

// acquire returns the copy of src, allocating it for the first region.
func (c *Copier) acquire(ctx context.Context, src domain.DataspaceID, m *child.ManagedObject) (domain.DataspaceID, error) {
	if d, ok := c.dests[src]; ok {
		d.refs++
		return d.id, nil
	}

	var size uint64
	if m != nil {
		size = m.Size
	} else {
		n, err := c.mem.Size(ctx, src)
		if err != nil {
			return 0, fmt.Errorf("size of dataspace %d: %w", src, err)
		}
		size = n
	}

	id, err := c.mem.Alloc(ctx, size)
	if err != nil {
		if errors.Is(err, domain.ErrAllocationFailure) {
			return 0, err
		}
		return 0, domain.ErrAllocationFailure.WithCause(err)
	}
	c.dests[src] = &dest{id: id, refs: 1}
	return id, nil
}

func (c *Copier) release(ctx context.Context, src domain.DataspaceID) {
	d, ok := c.dests[src]
	if !ok {
		return
	}
	d.refs--
	if d.refs > 0 {
		return
	}
	delete(c.dests, src)
	if err := c.mem.Free(ctx, d.id); err != nil {
		logger.L(ctx).Warn("free copy dataspace failed", "copy", d.id, "error", err)
	}
}

// copyAll copies every source once. Managed sources copy their attached
// sub-regions and detach them afterwards.
func (c *Copier) copyAll(ctx context.Context, managed map[domain.DataspaceID]*child.ManagedObject) error {
	srcs := make([]domain.DataspaceID, 0, len(c.dests))
	for src := range c.dests {
		srcs = append(srcs, src)
	}
	sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })

	for _, src := range srcs {
		d := c.dests[src]
		m, ok := managed[src]
		if !ok {
			// A vanished source fails validation and is dropped.
			size, _ := c.mem.Size(ctx, src)
			if err := c.copy(ctx, domain.CopyTask{Kind: domain.TaskPlain, Source: src, Dest: d.id, Size: size}); err != nil {
				return err
			}
			continue
		}
		for _, r := range m.Attached() {
			err := c.copy(ctx, domain.CopyTask{
				Kind:       domain.TaskDirty,
				Source:     r.Dataspace,
				Dest:       d.id,
				DestOffset: r.Offset,
				Size:       r.Size,
			})
			if err != nil {
				return err
			}
			r.Detach()
		}
	}
	return nil
}

func (c *Copier) copy(ctx context.Context, t domain.CopyTask) error {
	lane := t.Kind.String()
	c.metrics.RecordTask(lane, metric.TaskEnqueued)
	n, err := checkpoint.CopyMemory(ctx, c.mem, t)
	if errors.Is(err, domain.ErrCopyTargetMismatch) {
		logger.L(ctx).Warn("copy task dropped", "task", t.String(), "error", err)
		c.metrics.RecordTask(lane, metric.TaskDropped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("copy %s: %w", t, err)
	}
	c.metrics.RecordTask(lane, metric.TaskProcessed)
	c.metrics.AddBytesCopied(n)
	return nil
}

func (c *Copier) copyThreads() {
	var live []*child.Thread
	for _, s := range c.target.CPU() {
		live = append(live, s.Threads...)
	}
	_, _ = marksweep.Sync(c.threads, live, marksweep.Funcs[domain.Badge, *child.Thread, *domain.CopiedThread]{
		Key: func(t *child.Thread) domain.Badge { return t.Badge },
		Construct: func(t *child.Thread) (*domain.CopiedThread, error) {
			return &domain.CopiedThread{Badge: t.Badge, Name: t.Name, State: t.State}, nil
		},
		Update: func(ct *domain.CopiedThread, t *child.Thread) error {
			ct.Name = t.Name
			ct.State = t.State
			return nil
		},
	})
}

func (s regionSet) sorted() []domain.CopiedRegion {
	out := make([]domain.CopiedRegion, 0, len(s))
	for _, r := range s {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RelAddr != out[j].RelAddr {
			return out[i].RelAddr < out[j].RelAddr
		}
		return out[i].DS < out[j].DS
	})
	return out
}

func (c *Copier) sortedThreads() []domain.CopiedThread {
	out := make([]domain.CopiedThread, 0, len(c.threads))
	for _, t := range c.threads {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Badge < out[j].Badge })
	return out
}

func (c *Copier) setCommitted(s *domain.Snapshot) {
	c.snapMu.Lock()
	c.committed = s
	c.snapMu.Unlock()
}

// Snapshot returns a deep copy of the last committed snapshot.
func (c *Copier) Snapshot() (*domain.Snapshot, error) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.committed == nil {
		return nil, domain.ErrNoSnapshot
	}
	return c.committed.Clone(), nil
}

// Close frees every copy and withdraws the snapshot. Further cycles fail.
func (c *Copier) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for src, d := range c.dests {
		if err := c.mem.Free(ctx, d.id); err != nil {
			errs = append(errs, err)
		}
		delete(c.dests, src)
	}
	c.stack, c.linker, c.space = make(regionSet), make(regionSet), make(regionSet)
	c.setCommitted(nil)
	return errors.Join(errs...)
}

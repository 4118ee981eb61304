package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
	"github.com/yndnr/rtcr-go/internal/telemetry/metric"
	"github.com/yndnr/rtcr-go/pkg/taskq"
)

// job is one unit of pool work. Copy jobs carry a task, prepare jobs a func.
type job struct {
	kind JobKind
	task domain.CopyTask
	run  func(ctx context.Context) error
}

func (j job) lane() taskq.Lane {
	if j.kind == JobCopyDirty {
		return taskq.LaneDirty
	}
	return taskq.LanePlain
}

func copyJob(t domain.CopyTask) job {
	if t.Kind == domain.TaskDirty {
		return job{kind: JobCopyDirty, task: t}
	}
	return job{kind: JobCopyPlain, task: t}
}

type copyStats struct {
	processed atomic.Uint64
	dropped   atomic.Uint64
	bytes     atomic.Uint64
}

// pool executes jobs on a fixed number of workers fed through taskq lanes.
// With zero workers jobs run inline on the caller.
type pool struct {
	workers int
	pin     bool
	mem     child.Memory
	metrics Metrics
	stats   copyStats
}

// run executes jobs and returns once all of them finished or a job failed.
// Copy target mismatches are dropped and do not fail the run.
func (p *pool) run(ctx context.Context, jobs []job) error {
	if len(jobs) == 0 {
		return nil
	}
	if p.workers == 0 {
		for _, j := range jobs {
			p.enqueued(j)
			if err := p.exec(ctx, j); err != nil {
				return err
			}
		}
		return nil
	}

	q := taskq.New[job]()
	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < min(p.workers, len(jobs)); slot++ {
		g.Go(func() error {
			return p.worker(gctx, slot, q)
		})
	}

	for _, j := range jobs {
		if err := q.Push(j.lane(), j); err != nil {
			break
		}
		p.enqueued(j)
	}
	q.Close()
	return g.Wait()
}

func (p *pool) worker(ctx context.Context, slot int, q *taskq.Queues[job]) error {
	if p.pin {
		restore, err := pinWorker(slot)
		if err != nil {
			logger.L(ctx).Debug("pin worker failed", "slot", slot, "error", err)
		}
		defer restore()
	}

	for {
		j, _, ok := q.Pop()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.exec(ctx, j); err != nil {
			return err
		}
	}
}

func (p *pool) enqueued(j job) {
	if j.kind == JobCopyPlain || j.kind == JobCopyDirty {
		p.metrics.RecordTask(j.task.Kind.String(), metric.TaskEnqueued)
	}
}

func (p *pool) exec(ctx context.Context, j job) error {
	switch j.kind {
	case JobCopyPlain, JobCopyDirty:
	default:
		return j.run(ctx)
	}

	lane := j.task.Kind.String()
	n, err := CopyMemory(ctx, p.mem, j.task)
	if errors.Is(err, domain.ErrCopyTargetMismatch) {
		logger.L(ctx).Warn("copy task dropped", "task", j.task.String(), "error", err)
		p.stats.dropped.Add(1)
		p.metrics.RecordTask(lane, metric.TaskDropped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("copy %s: %w", j.task, err)
	}
	p.stats.processed.Add(1)
	p.stats.bytes.Add(n)
	p.metrics.RecordTask(lane, metric.TaskProcessed)
	p.metrics.AddBytesCopied(n)
	return nil
}

// CopyMemory copies t.Size bytes from the start of t.Source into t.Dest at
// t.DestOffset. An endpoint that vanished counts as a mismatch. Failing to
// unmap either endpoint fails the copy.
func CopyMemory(ctx context.Context, mem child.Memory, t domain.CopyTask) (n uint64, err error) {
	srcSize, err := mem.Size(ctx, t.Source)
	if err != nil {
		return 0, domain.ErrCopyTargetMismatch.WithDetails(fmt.Sprintf("source %d", t.Source)).WithCause(err)
	}
	dstSize, err := mem.Size(ctx, t.Dest)
	if err != nil {
		return 0, domain.ErrCopyTargetMismatch.WithDetails(fmt.Sprintf("dest %d", t.Dest)).WithCause(err)
	}
	if err := t.Validate(srcSize, dstSize); err != nil {
		return 0, err
	}

	src, err := mem.Attach(ctx, t.Source)
	if err != nil {
		return 0, fmt.Errorf("attach source: %w", err)
	}
	defer detach(ctx, mem, t.Source, "source", &err)

	dst, err := mem.Attach(ctx, t.Dest)
	if err != nil {
		return 0, fmt.Errorf("attach dest: %w", err)
	}
	defer detach(ctx, mem, t.Dest, "dest", &err)

	copy(dst[t.DestOffset:t.DestOffset+t.Size], src[:t.Size])
	return t.Size, nil
}

func detach(ctx context.Context, mem child.Memory, id domain.DataspaceID, end string, err *error) {
	if derr := mem.Detach(ctx, id); derr != nil {
		*err = errors.Join(*err, fmt.Errorf("detach %s %d: %w", end, id, derr))
	}
}

package taskq

import (
	"errors"
	"sync"
)

// Lane selects one of the two FIFOs.
type Lane int

const (
	LanePlain Lane = iota
	LaneDirty

	numLanes = 2
)

// String returns the lane name.
func (l Lane) String() string {
	switch l {
	case LanePlain:
		return "plain"
	case LaneDirty:
		return "dirty"
	default:
		return "invalid"
	}
}

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("taskq: queue closed")

// ErrInvalidLane is returned by Push for an unknown lane.
var ErrInvalidLane = errors.New("taskq: invalid lane")

// Stats are the per-lane push and pop counters.
type Stats struct {
	Pushed [numLanes]uint64
	Popped [numLanes]uint64
}

type fifo[T any] struct {
	items []T
	head  int
}

func (f *fifo[T]) len() int { return len(f.items) - f.head }

func (f *fifo[T]) push(v T) { f.items = append(f.items, v) }

func (f *fifo[T]) pop() T {
	var zero T
	v := f.items[f.head]
	f.items[f.head] = zero
	f.head++
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
	}
	return v
}

// Queues is a pair of FIFO lanes sharing one lock and one condition.
type Queues[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lanes  [numLanes]fifo[T]
	next   Lane
	closed bool
	stats  Stats
}

// New creates open, empty queues.
func New[T any]() *Queues[T] {
	q := &Queues[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to lane and wakes one waiting consumer.
func (q *Queues[T]) Push(lane Lane, item T) error {
	if lane < 0 || lane >= numLanes {
		return ErrInvalidLane
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.lanes[lane].push(item)
	q.stats.Pushed[lane]++
	q.cond.Signal()
	return nil
}

// Pop removes the next item, blocking while the queue is open and empty.
// ok is false once the queue is closed and both lanes are drained.
func (q *Queues[T]) Pop() (item T, lane Lane, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.lanes[LanePlain].len() == 0 && q.lanes[LaneDirty].len() == 0 {
		if q.closed {
			return item, 0, false
		}
		q.cond.Wait()
	}

	lane = q.next
	if q.lanes[lane].len() == 0 {
		lane = 1 - lane
	}
	q.next = 1 - lane
	q.stats.Popped[lane]++
	return q.lanes[lane].pop(), lane, true
}

// Close stops accepting pushes and releases every blocked consumer once
// the lanes are drained. Closing twice is a no-op.
func (q *Queues[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queues[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items waiting in lane.
func (q *Queues[T]) Len(lane Lane) int {
	if lane < 0 || lane >= numLanes {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lanes[lane].len()
}

// Stats returns a copy of the counters.
func (q *Queues[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

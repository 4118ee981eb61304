package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/storage/memory"
)

// ErrPaused is returned by mutating calls while the child is paused.
var ErrPaused = errors.New("sim: child is paused")

// ErrUnknown is returned for records that do not belong to this child.
var ErrUnknown = errors.New("sim: unknown record")

// Region map dataspaces carry no memory; their ids live above this base so
// they never collide with store ids.
const regionMapIDBase domain.DataspaceID = 1 << 40

// Default sizes of the PD areas.
const (
	DefaultAddressSpaceSize = 1 << 30
	DefaultStackAreaSize    = 1 << 28
	DefaultLinkerAreaSize   = 1 << 28
)

// Option configures a Child.
type Option func(*Child)

// WithName sets the child's name.
func WithName(name string) Option {
	return func(c *Child) { c.name = name }
}

// WithServices selects which optional services the child has installed.
func WithServices(rm, log, timer bool) Option {
	return func(c *Child) {
		c.hasRM, c.hasLog, c.hasTimer = rm, log, timer
	}
}

// Child is a simulated supervised child.
type Child struct {
	mu  sync.Mutex
	mem *memory.Store

	name                   string
	hasRM, hasLog, hasTimer bool

	paused  bool
	pauses  int
	resumes int
	faults  int

	failPause  error
	failResume error

	nextBadge domain.Badge
	nextRMID  domain.DataspaceID
	caps      map[domain.Badge]domain.Kcap

	ram   []*child.RAMSession
	cpu   []*child.CPUSession
	pd    []*child.PDSession
	rm    []*child.RMSession
	log   []*child.LogSession
	timer []*child.TimerSession

	// dataspace id -> owning RAM session, for writes by id
	owner map[domain.DataspaceID]*child.RAMSession
}

// New creates a running child with all optional services installed.
func New(mem *memory.Store, opts ...Option) *Child {
	c := &Child{
		mem:      mem,
		name:     "child",
		hasRM:    true,
		hasLog:   true,
		hasTimer: true,
		nextRMID: regionMapIDBase,
		caps:     make(map[domain.Badge]domain.Kcap),
		owner:    make(map[domain.DataspaceID]*child.RAMSession),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the child's name.
func (c *Child) Name() string { return c.name }

// Memory returns the store backing the child.
func (c *Child) Memory() *memory.Store { return c.mem }

// --- Supervisor -------------------------------------------------------------

// Pause freezes the child. Pausing a paused child is a no-op.
func (c *Child) Pause(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failPause; err != nil {
		c.failPause = nil
		return err
	}
	if !c.paused {
		c.paused = true
		c.pauses++
	}
	return nil
}

// Resume unfreezes the child. Resuming a running child is a no-op.
func (c *Child) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failResume; err != nil {
		c.failResume = nil
		return err
	}
	if c.paused {
		c.paused = false
		c.resumes++
	}
	return nil
}

// FailNextPause makes the next Pause return err without pausing.
func (c *Child) FailNextPause(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failPause = err
}

// FailNextResume makes the next Resume return err without resuming.
func (c *Child) FailNextResume(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failResume = err
}

// Paused reports whether the child is paused.
func (c *Child) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Counters returns how often the child was paused, resumed, and faulted.
func (c *Child) Counters() (pauses, resumes, faults int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses, c.resumes, c.faults
}

// --- Directory and CapSpace -------------------------------------------------

// RAM returns the live RAM sessions.
func (c *Child) RAM() []*child.RAMSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ram)
}

// CPU returns the live CPU sessions.
func (c *Child) CPU() []*child.CPUSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.cpu)
}

// PD returns the live PD sessions.
func (c *Child) PD() []*child.PDSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.pd)
}

// RM returns the live RM sessions when the service is installed.
func (c *Child) RM() ([]*child.RMSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rm), c.hasRM
}

// Log returns the live log sessions when the service is installed.
func (c *Child) Log() ([]*child.LogSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.log), c.hasLog
}

// Timer returns the live timer sessions when the service is installed.
func (c *Child) Timer() ([]*child.TimerSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.timer), c.hasTimer
}

// Capabilities returns every live (badge, kcap) pair sorted by badge.
func (c *Child) Capabilities(_ context.Context) ([]domain.CapEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CapEntry, 0, len(c.caps))
	for b, k := range c.caps {
		out = append(out, domain.CapEntry{Badge: b, Kcap: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Badge < out[j].Badge })
	return out, nil
}

// --- helpers (c.mu held) ----------------------------------------------------

func (c *Child) running() error {
	if c.paused {
		return ErrPaused
	}
	return nil
}

// badge hands out the next badge and registers its kcap. Kcaps follow the
// Fiasco.OC selector layout: one 4 KiB-aligned slot per badge.
func (c *Child) badge() domain.Badge {
	c.nextBadge++
	b := c.nextBadge
	c.caps[b] = domain.Kcap(uint64(b) << 12)
	return b
}

func (c *Child) drop(badges ...domain.Badge) {
	for _, b := range badges {
		delete(c.caps, b)
	}
}

func (c *Child) virtualID() domain.DataspaceID {
	c.nextRMID++
	return c.nextRMID
}

func (c *Child) regionMap(size uint64) *child.RegionMap {
	return &child.RegionMap{Badge: c.badge(), Size: size, DS: c.virtualID()}
}

func ramOwner(s *child.RAMSession) string {
	return fmt.Sprintf("ram:%d", s.Badge)
}

func info(b domain.Badge, args string) child.SessionInfo {
	return child.SessionInfo{Badge: b, Args: args}
}

package child

import (
	"context"

	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// Directory exposes the live sessions of a child.
//
// The optional accessors report ok=false when the child has no such
// service installed; that is not an error.
type Directory interface {
	RAM() []*RAMSession
	CPU() []*CPUSession
	PD() []*PDSession
	RM() ([]*RMSession, bool)
	Log() ([]*LogSession, bool)
	Timer() ([]*TimerSession, bool)
}

// Supervisor pauses and resumes the child. Both calls are idempotent.
type Supervisor interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// CapSpace reads the child's capability space.
type CapSpace interface {
	Capabilities(ctx context.Context) ([]domain.CapEntry, error)
}

// Target is everything an engine needs from one child.
type Target interface {
	Directory
	Supervisor
	CapSpace
}

// Memory allocates and maps dataspaces.
type Memory interface {
	Alloc(ctx context.Context, size uint64) (domain.DataspaceID, error)
	Free(ctx context.Context, id domain.DataspaceID) error
	Attach(ctx context.Context, id domain.DataspaceID) ([]byte, error)
	Detach(ctx context.Context, id domain.DataspaceID) error
	Size(ctx context.Context, id domain.DataspaceID) (uint64, error)
}

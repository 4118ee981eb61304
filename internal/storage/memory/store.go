package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/pkg/cmap"
)

type object struct {
	owner    string
	data     []byte
	mappings atomic.Int32
}

// Store holds dataspaces in memory.
type Store struct {
	// Primary index: DataspaceID -> object
	objects *cmap.Map[domain.DataspaceID, *object]

	// Secondary index: owner -> set of DataspaceIDs
	owners *OwnerIndex

	nextID atomic.Uint64

	// Accounting is serialized so the quota check and the charge are atomic.
	mu    sync.Mutex
	used  uint64
	quota uint64
}

// Option configures the Store.
type Option func(*Store)

// WithQuota limits the total bytes of live dataspaces. Zero means unlimited.
func WithQuota(bytes uint64) Option {
	return func(s *Store) {
		s.quota = bytes
	}
}

// New creates a new in-memory dataspace store.
func New(opts ...Option) *Store {
	s := &Store{
		objects: cmap.New[domain.DataspaceID, *object](),
		owners:  NewOwnerIndex(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Alloc creates a zeroed dataspace of size bytes.
func (s *Store) Alloc(ctx context.Context, size uint64) (domain.DataspaceID, error) {
	return s.AllocOwned(ctx, "", size)
}

// AllocOwned creates a zeroed dataspace recorded under owner.
func (s *Store) AllocOwned(_ context.Context, owner string, size uint64) (domain.DataspaceID, error) {
	if size == 0 {
		return 0, domain.ErrInvalidArgument.WithDetails("dataspace size must be positive")
	}

	s.mu.Lock()
	if s.quota > 0 && s.used+size > s.quota {
		used := s.used
		s.mu.Unlock()
		return 0, domain.ErrAllocationFailure.WithDetails(
			fmt.Sprintf("size=%d used=%d quota=%d", size, used, s.quota))
	}
	s.used += size
	s.mu.Unlock()

	id := domain.DataspaceID(s.nextID.Add(1))
	s.objects.Set(id, &object{owner: owner, data: make([]byte, size)})
	if owner != "" {
		s.owners.Add(owner, id)
	}
	return id, nil
}

// Free releases a dataspace.
func (s *Store) Free(_ context.Context, id domain.DataspaceID) error {
	obj, ok := s.objects.Pop(id)
	if !ok {
		return domain.ErrDataspaceNotFound.WithDetails(fmt.Sprintf("id=%d", id))
	}
	if obj.owner != "" {
		s.owners.Remove(obj.owner, id)
	}

	s.mu.Lock()
	s.used -= uint64(len(obj.data))
	s.mu.Unlock()
	return nil
}

// FreeOwner releases every dataspace allocated under owner and returns the count.
func (s *Store) FreeOwner(ctx context.Context, owner string) int {
	n := 0
	for _, id := range s.owners.Get(owner) {
		if s.Free(ctx, id) == nil {
			n++
		}
	}
	s.owners.Clear(owner)
	return n
}

// Attach maps a dataspace and returns its content. Writes through the
// slice change the dataspace. Every Attach must be paired with Detach.
func (s *Store) Attach(_ context.Context, id domain.DataspaceID) ([]byte, error) {
	obj, ok := s.objects.Get(id)
	if !ok {
		return nil, domain.ErrDataspaceNotFound.WithDetails(fmt.Sprintf("id=%d", id))
	}
	obj.mappings.Add(1)
	return obj.data, nil
}

// Detach ends a mapping established by Attach.
func (s *Store) Detach(_ context.Context, id domain.DataspaceID) error {
	obj, ok := s.objects.Get(id)
	if !ok {
		// Freed while mapped; nothing left to account.
		return nil
	}
	if obj.mappings.Add(-1) < 0 {
		obj.mappings.Store(0)
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("detach of unmapped dataspace %d", id))
	}
	return nil
}

// Size returns the size of a dataspace in bytes.
func (s *Store) Size(_ context.Context, id domain.DataspaceID) (uint64, error) {
	obj, ok := s.objects.Get(id)
	if !ok {
		return 0, domain.ErrDataspaceNotFound.WithDetails(fmt.Sprintf("id=%d", id))
	}
	return uint64(len(obj.data)), nil
}

// Read returns a copy of a dataspace's content.
func (s *Store) Read(ctx context.Context, id domain.DataspaceID) ([]byte, error) {
	data, err := s.Attach(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.Detach(ctx, id)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Mappings returns the number of open Attach mappings of a dataspace.
func (s *Store) Mappings(id domain.DataspaceID) int {
	obj, ok := s.objects.Get(id)
	if !ok {
		return 0
	}
	return int(obj.mappings.Load())
}

// Owned returns the ids allocated under owner.
func (s *Store) Owned(owner string) []domain.DataspaceID {
	return s.owners.Get(owner)
}

// Stats contains store statistics.
type Stats struct {
	Dataspaces int
	// Mapped counts dataspaces with at least one open Attach mapping.
	Mapped     int
	UsedBytes  uint64
	QuotaBytes uint64
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	used := s.used
	s.mu.Unlock()

	st := Stats{
		Dataspaces: s.objects.Len(),
		UsedBytes:  used,
		QuotaBytes: s.quota,
	}
	for _, obj := range s.objects.All() {
		if obj.mappings.Load() > 0 {
			st.Mapped++
		}
	}
	return st
}

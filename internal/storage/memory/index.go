package memory

import (
	"sync"

	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/pkg/cmap"
)

// IDSet is a concurrent-safe set of dataspace ids.
type IDSet struct {
	mu    sync.RWMutex
	items map[domain.DataspaceID]struct{}
}

// NewIDSet creates a new id set.
func NewIDSet() *IDSet {
	return &IDSet{
		items: make(map[domain.DataspaceID]struct{}),
	}
}

// Add adds an id to the set.
func (s *IDSet) Add(id domain.DataspaceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = struct{}{}
}

// Remove removes an id from the set.
func (s *IDSet) Remove(id domain.DataspaceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// Contains checks if an id is in the set.
func (s *IDSet) Contains(id domain.DataspaceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of items in the set.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of all ids.
func (s *IDSet) Items() []domain.DataspaceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.DataspaceID, 0, len(s.items))
	for id := range s.items {
		items = append(items, id)
	}
	return items
}

// OwnerIndex maps an owner label to the set of dataspaces it allocated.
// Owner labels are small, so the index is keyed by a label number handed
// out by the store.
type OwnerIndex struct {
	mu     sync.Mutex
	labels map[string]uint32
	index  *cmap.Map[uint32, *IDSet]
}

// NewOwnerIndex creates a new owner index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{
		labels: make(map[string]uint32),
		index:  cmap.New[uint32, *IDSet](),
	}
}

func (i *OwnerIndex) key(owner string) uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	k, ok := i.labels[owner]
	if !ok {
		k = uint32(len(i.labels) + 1)
		i.labels[owner] = k
	}
	return k
}

// Add records id as owned by owner.
func (i *OwnerIndex) Add(owner string, id domain.DataspaceID) {
	set, _ := i.index.GetOrSet(i.key(owner), NewIDSet())
	set.Add(id)
}

// Remove drops id from owner's set.
func (i *OwnerIndex) Remove(owner string, id domain.DataspaceID) {
	set, ok := i.index.Get(i.key(owner))
	if !ok {
		return
	}
	set.Remove(id)
}

// Get returns all ids owned by owner.
func (i *OwnerIndex) Get(owner string) []domain.DataspaceID {
	set, ok := i.index.Get(i.key(owner))
	if !ok {
		return nil
	}
	return set.Items()
}

// Count returns the number of ids owned by owner.
func (i *OwnerIndex) Count(owner string) int {
	set, ok := i.index.Get(i.key(owner))
	if !ok {
		return 0
	}
	return set.Len()
}

// Clear forgets every id of owner.
func (i *OwnerIndex) Clear(owner string) {
	i.index.Delete(i.key(owner))
}

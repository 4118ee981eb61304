package child

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// DesignatedRegion is one sub-region of a managed object with its own
// backing dataspace. Attached means "written since the last detach".
type DesignatedRegion struct {
	Dataspace domain.DataspaceID
	Offset    uint64
	Size      uint64

	attached atomic.Bool
}

// NewDesignatedRegion creates a sub-region.
func NewDesignatedRegion(ds domain.DataspaceID, offset, size uint64, attached bool) *DesignatedRegion {
	r := &DesignatedRegion{Dataspace: ds, Offset: offset, Size: size}
	r.attached.Store(attached)
	return r
}

// IsAttached reports whether the sub-region is currently attached.
func (r *DesignatedRegion) IsAttached() bool {
	return r.attached.Load()
}

// Attach marks the sub-region attached. Fault handling calls it on the
// first touch after a detach.
func (r *DesignatedRegion) Attach() {
	r.attached.Store(true)
}

// Detach clears the attached flag and returns its previous value.
func (r *DesignatedRegion) Detach() bool {
	return r.attached.Swap(false)
}

// ManagedObject is a dataspace composed of designated sub-regions that
// partition its range.
type ManagedObject struct {
	Dataspace domain.DataspaceID
	Size      uint64
	Regions   []*DesignatedRegion
}

// NewManagedObject validates that regions tile [0, size) without gaps or
// overlap and returns the object with regions sorted by offset.
func NewManagedObject(ds domain.DataspaceID, size uint64, regions []*DesignatedRegion) (*ManagedObject, error) {
	if size == 0 || len(regions) == 0 {
		return nil, domain.ErrInvalidLayout.WithDetails("empty managed object")
	}
	sorted := make([]*DesignatedRegion, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var next uint64
	for i, r := range sorted {
		if r.Size == 0 {
			return nil, domain.ErrInvalidLayout.WithDetails(fmt.Sprintf("region %d is empty", i))
		}
		if r.Offset != next {
			return nil, domain.ErrInvalidLayout.WithDetails(
				fmt.Sprintf("region %d at %#x, expected %#x", i, r.Offset, next))
		}
		next = r.Offset + r.Size
	}
	if next != size {
		return nil, domain.ErrInvalidLayout.WithDetails(fmt.Sprintf("regions cover %#x of %#x bytes", next, size))
	}
	return &ManagedObject{Dataspace: ds, Size: size, Regions: sorted}, nil
}

// Attached returns the currently attached sub-regions.
func (m *ManagedObject) Attached() []*DesignatedRegion {
	var out []*DesignatedRegion
	for _, r := range m.Regions {
		if r.IsAttached() {
			out = append(out, r)
		}
	}
	return out
}

// RegionAt returns the sub-region containing offset.
func (m *ManagedObject) RegionAt(offset uint64) (*DesignatedRegion, bool) {
	i := sort.Search(len(m.Regions), func(i int) bool {
		r := m.Regions[i]
		return r.Offset+r.Size > offset
	})
	if i == len(m.Regions) || m.Regions[i].Offset > offset {
		return nil, false
	}
	return m.Regions[i], true
}

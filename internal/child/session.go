package child

import (
	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// SessionInfo is the header shared by all live sessions.
type SessionInfo struct {
	Badge        domain.Badge
	Args         string
	Upgrade      string
	Bootstrapped bool
}

// Dataspace is a memory object handed to the child by a RAM session.
type Dataspace struct {
	Badge  domain.Badge
	ID     domain.DataspaceID
	Size   uint64
	Cached bool
}

// RAMSession is a live memory-allocation session.
type RAMSession struct {
	SessionInfo
	Quota      uint64
	Dataspaces []*Dataspace

	managed map[domain.DataspaceID]*ManagedObject
}

// Managed returns the managed object backing dataspace id, if any.
func (s *RAMSession) Managed(id domain.DataspaceID) (*ManagedObject, bool) {
	m, ok := s.managed[id]
	return m, ok
}

// SetManaged registers m as the composition of its dataspace.
func (s *RAMSession) SetManaged(m *ManagedObject) {
	if s.managed == nil {
		s.managed = make(map[domain.DataspaceID]*ManagedObject)
	}
	s.managed[m.Dataspace] = m
}

// RemoveManaged forgets the composition of dataspace id.
func (s *RAMSession) RemoveManaged(id domain.DataspaceID) {
	delete(s.managed, id)
}

// Thread is a live thread of a scheduling session.
type Thread struct {
	Badge      domain.Badge
	Name       string
	Weight     uint64
	Affinity   int
	Started    bool
	Paused     bool
	SingleStep bool
	Sigh       domain.Badge
	State      domain.ThreadState
}

// CPUSession is a live scheduling session.
type CPUSession struct {
	SessionInfo
	Sigh    domain.Badge
	Threads []*Thread
}

// NativeCap is a capability allocated through a PD session.
type NativeCap struct {
	Badge   domain.Badge
	EPBadge domain.Badge
}

// SignalSource is a live signal source.
type SignalSource struct {
	Badge domain.Badge
}

// SignalContext is a live signal context.
type SignalContext struct {
	Badge       domain.Badge
	SourceBadge domain.Badge
	Imprint     uint64
}

// AttachedRegion is a dataspace attached into a region map.
type AttachedRegion struct {
	DSBadge    domain.Badge
	DS         domain.DataspaceID
	RelAddr    uint64
	Size       uint64
	Offset     uint64
	Executable bool
}

// Key returns the identity of the region inside its region map.
func (r *AttachedRegion) Key() domain.RegionKey {
	return domain.RegionKey{DS: r.DS, RelAddr: r.RelAddr}
}

// RegionMap is an address-space layout backed by its own dataspace.
type RegionMap struct {
	Badge   domain.Badge
	Size    uint64
	DS      domain.DataspaceID
	Sigh    domain.Badge
	Regions []*AttachedRegion
}

// PDSession is a live protection-domain session.
type PDSession struct {
	SessionInfo
	NativeCaps     []*NativeCap
	SignalSources  []*SignalSource
	SignalContexts []*SignalContext
	AddressSpace   *RegionMap
	StackArea      *RegionMap
	LinkerArea     *RegionMap
}

// RegionMaps returns the three region maps of the session.
func (p *PDSession) RegionMaps() []*RegionMap {
	return []*RegionMap{p.AddressSpace, p.StackArea, p.LinkerArea}
}

// RMSession is a live region-mapping session.
type RMSession struct {
	SessionInfo
	RegionMaps []*RegionMap
}

// LogSession is a live log session.
type LogSession struct {
	SessionInfo
}

// TimerSession is a live timer session.
type TimerSession struct {
	SessionInfo
	Sigh     domain.Badge
	Timeout  uint64
	Periodic bool
}

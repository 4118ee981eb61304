package domain

// SessionInfo holds the fields every stored session carries.
type SessionInfo struct {
	Badge        Badge  `json:"badge"`
	Kcap         Kcap   `json:"kcap"`
	Args         string `json:"args"`
	Upgrade      string `json:"upgrade,omitempty"`
	Bootstrapped bool   `json:"bootstrapped"`
}

// StoredDataspace mirrors one RAM dataspace and owns its copy.
type StoredDataspace struct {
	Badge  Badge       `json:"badge"`
	Kcap   Kcap        `json:"kcap"`
	Orig   DataspaceID `json:"orig"`
	Size   uint64      `json:"size"`
	Cached bool        `json:"cached"`

	// Managed is set when the dataspace is composed of designated sub-regions.
	Managed bool `json:"managed"`

	// Excluded dataspaces back a region map and are never copied.
	Excluded bool `json:"excluded"`

	// Copy is the destination memory object. Zero when Excluded.
	Copy DataspaceID `json:"copy,omitempty"`
}

// StoredRAMSession mirrors a memory-allocation session.
type StoredRAMSession struct {
	SessionInfo
	Quota      uint64                     `json:"quota"`
	Dataspaces map[Badge]*StoredDataspace `json:"dataspaces"`
}

// ThreadState is the register file of a paused thread.
type ThreadState struct {
	IP  uint64    `json:"ip"`
	SP  uint64    `json:"sp"`
	GPR [8]uint64 `json:"gpr"`
}

// StoredThread mirrors a thread of a scheduling session.
type StoredThread struct {
	Badge      Badge       `json:"badge"`
	Kcap       Kcap        `json:"kcap"`
	Name       string      `json:"name"`
	Weight     uint64      `json:"weight"`
	Affinity   int         `json:"affinity"`
	Started    bool        `json:"started"`
	Paused     bool        `json:"paused"`
	SingleStep bool        `json:"single_step"`
	Sigh       Badge       `json:"sigh,omitempty"`
	State      ThreadState `json:"state"`
}

// StoredCPUSession mirrors a scheduling session.
type StoredCPUSession struct {
	SessionInfo
	Sigh    Badge                   `json:"sigh,omitempty"`
	Threads map[Badge]*StoredThread `json:"threads"`
}

// StoredNativeCap mirrors a native capability allocated by a PD session.
type StoredNativeCap struct {
	Badge   Badge `json:"badge"`
	Kcap    Kcap  `json:"kcap"`
	EPBadge Badge `json:"ep_badge"`
}

// StoredSignalSource mirrors a signal source.
type StoredSignalSource struct {
	Badge Badge `json:"badge"`
	Kcap  Kcap  `json:"kcap"`
}

// StoredSignalContext mirrors a signal context bound to a source.
type StoredSignalContext struct {
	Badge       Badge  `json:"badge"`
	Kcap        Kcap   `json:"kcap"`
	SourceBadge Badge  `json:"source_badge"`
	Imprint     uint64 `json:"imprint"`
}

// StoredAttachedRegion mirrors one attachment inside a region map.
type StoredAttachedRegion struct {
	DSBadge    Badge       `json:"ds_badge"`
	Kcap       Kcap        `json:"kcap"`
	DS         DataspaceID `json:"ds"`
	RelAddr    uint64      `json:"rel_addr"`
	Size       uint64      `json:"size"`
	Offset     uint64      `json:"offset"`
	Executable bool        `json:"executable"`
	Managed    bool        `json:"managed"`
}

// Key returns the identity of the region inside its region map.
func (r *StoredAttachedRegion) Key() RegionKey {
	return RegionKey{DS: r.DS, RelAddr: r.RelAddr}
}

// StoredRegionMap mirrors a region map and its attachments.
type StoredRegionMap struct {
	Badge   Badge                                `json:"badge"`
	Kcap    Kcap                                 `json:"kcap"`
	Size    uint64                               `json:"size"`
	DS      DataspaceID                          `json:"ds"`
	Sigh    Badge                                `json:"sigh,omitempty"`
	Regions map[RegionKey]*StoredAttachedRegion `json:"regions"`
}

// NewStoredRegionMap returns an empty region map record.
func NewStoredRegionMap() *StoredRegionMap {
	return &StoredRegionMap{Regions: make(map[RegionKey]*StoredAttachedRegion)}
}

// StoredPDSession mirrors a protection-domain session.
type StoredPDSession struct {
	SessionInfo
	NativeCaps     map[Badge]*StoredNativeCap     `json:"native_caps"`
	SignalSources  map[Badge]*StoredSignalSource  `json:"signal_sources"`
	SignalContexts map[Badge]*StoredSignalContext `json:"signal_contexts"`
	AddressSpace   *StoredRegionMap               `json:"address_space"`
	StackArea      *StoredRegionMap               `json:"stack_area"`
	LinkerArea     *StoredRegionMap               `json:"linker_area"`
}

// StoredRMSession mirrors a region-mapping session.
type StoredRMSession struct {
	SessionInfo
	RegionMaps map[Badge]*StoredRegionMap `json:"region_maps"`
}

// StoredLogSession mirrors a log session.
type StoredLogSession struct {
	SessionInfo
}

// StoredTimerSession mirrors a timer session.
type StoredTimerSession struct {
	SessionInfo
	Sigh     Badge  `json:"sigh,omitempty"`
	Timeout  uint64 `json:"timeout"`
	Periodic bool   `json:"periodic"`
}

// State is the stored session tree of one child, keyed by badge per kind.
type State struct {
	RAM   map[Badge]*StoredRAMSession   `json:"ram"`
	CPU   map[Badge]*StoredCPUSession   `json:"cpu"`
	PD    map[Badge]*StoredPDSession    `json:"pd"`
	RM    map[Badge]*StoredRMSession    `json:"rm"`
	Log   map[Badge]*StoredLogSession   `json:"log"`
	Timer map[Badge]*StoredTimerSession `json:"timer"`
}

// NewState returns an empty state with all containers allocated.
func NewState() *State {
	return &State{
		RAM:   make(map[Badge]*StoredRAMSession),
		CPU:   make(map[Badge]*StoredCPUSession),
		PD:    make(map[Badge]*StoredPDSession),
		RM:    make(map[Badge]*StoredRMSession),
		Log:   make(map[Badge]*StoredLogSession),
		Timer: make(map[Badge]*StoredTimerSession),
	}
}

// Count returns the number of stored sessions of the given kind.
func (s *State) Count(kind SessionKind) int {
	switch kind {
	case KindRAM:
		return len(s.RAM)
	case KindCPU:
		return len(s.CPU)
	case KindPD:
		return len(s.PD)
	case KindRM:
		return len(s.RM)
	case KindLog:
		return len(s.Log)
	case KindTimer:
		return len(s.Timer)
	}
	return 0
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		RAM:   cloneMap(s.RAM, (*StoredRAMSession).Clone),
		CPU:   cloneMap(s.CPU, (*StoredCPUSession).Clone),
		PD:    cloneMap(s.PD, (*StoredPDSession).Clone),
		RM:    cloneMap(s.RM, (*StoredRMSession).Clone),
		Log:   cloneMap(s.Log, shallow[StoredLogSession]),
		Timer: cloneMap(s.Timer, shallow[StoredTimerSession]),
	}
}

// Clone returns a deep copy of the session.
func (r *StoredRAMSession) Clone() *StoredRAMSession {
	c := *r
	c.Dataspaces = cloneMap(r.Dataspaces, shallow[StoredDataspace])
	return &c
}

// Clone returns a deep copy of the session.
func (c *StoredCPUSession) Clone() *StoredCPUSession {
	n := *c
	n.Threads = cloneMap(c.Threads, shallow[StoredThread])
	return &n
}

// Clone returns a deep copy of the session.
func (p *StoredPDSession) Clone() *StoredPDSession {
	n := *p
	n.NativeCaps = cloneMap(p.NativeCaps, shallow[StoredNativeCap])
	n.SignalSources = cloneMap(p.SignalSources, shallow[StoredSignalSource])
	n.SignalContexts = cloneMap(p.SignalContexts, shallow[StoredSignalContext])
	n.AddressSpace = p.AddressSpace.Clone()
	n.StackArea = p.StackArea.Clone()
	n.LinkerArea = p.LinkerArea.Clone()
	return &n
}

// Clone returns a deep copy of the session.
func (r *StoredRMSession) Clone() *StoredRMSession {
	n := *r
	n.RegionMaps = cloneMap(r.RegionMaps, (*StoredRegionMap).Clone)
	return &n
}

// Clone returns a deep copy of the region map. Nil stays nil.
func (m *StoredRegionMap) Clone() *StoredRegionMap {
	if m == nil {
		return nil
	}
	n := *m
	n.Regions = cloneMap(m.Regions, shallow[StoredAttachedRegion])
	return &n
}

func shallow[V any](v *V) *V {
	c := *v
	return &c
}

func cloneMap[K comparable, V any](m map[K]*V, clone func(*V) *V) map[K]*V {
	if m == nil {
		return nil
	}
	out := make(map[K]*V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

// CopyHandles returns the dataspace badge to copy mapping of every
// non-excluded RAM dataspace in the state.
func (s *State) CopyHandles() map[Badge]DataspaceID {
	out := make(map[Badge]DataspaceID)
	for _, ram := range s.RAM {
		for b, ds := range ram.Dataspaces {
			if ds.Copy != 0 {
				out[b] = ds.Copy
			}
		}
	}
	return out
}

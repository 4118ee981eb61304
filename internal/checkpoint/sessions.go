package checkpoint

import (
	"context"
	"errors"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
	"github.com/yndnr/rtcr-go/pkg/marksweep"
)

// mirror runs marksweep.Sync for records whose update cannot fail.
// New entries are zero values filled in by update.
func mirror[K comparable, L any, S any](stored map[K]*S, live []L, key func(L) K, update func(*S, L)) marksweep.Stats {
	st, _ := marksweep.Sync(stored, live, marksweep.Funcs[K, L, *S]{
		Key: key,
		Construct: func(l L) (*S, error) {
			s := new(S)
			update(s, l)
			return s, nil
		},
		Update: func(s *S, l L) error {
			update(s, l)
			return nil
		},
	})
	return st
}

func storedInfo(s child.SessionInfo, caps capMap) domain.SessionInfo {
	return domain.SessionInfo{
		Badge:        s.Badge,
		Kcap:         caps.kcap(s.Badge),
		Args:         s.Args,
		Upgrade:      s.Upgrade,
		Bootstrapped: s.Bootstrapped,
	}
}

// ramSync mirrors the RAM sessions. It is the only writer of State.RAM
// and the only allocator of copy dataspaces during a cycle.
type ramSync struct {
	ctx     context.Context
	mem     child.Memory
	caps    capMap
	exclude map[domain.DataspaceID]struct{}
	stats   marksweep.Stats
}

func (r *ramSync) run(stored map[domain.Badge]*domain.StoredRAMSession, live []*child.RAMSession) error {
	st, err := marksweep.Sync(stored, live, marksweep.Funcs[domain.Badge, *child.RAMSession, *domain.StoredRAMSession]{
		Key: func(s *child.RAMSession) domain.Badge { return s.Badge },
		Construct: func(s *child.RAMSession) (*domain.StoredRAMSession, error) {
			n := &domain.StoredRAMSession{Dataspaces: make(map[domain.Badge]*domain.StoredDataspace)}
			if err := r.session(n, s); err != nil {
				r.releaseSession(s.Badge, n)
				return nil, err
			}
			return n, nil
		},
		Update:  r.session,
		Release: r.releaseSession,
	})
	r.stats.Add(st)
	return err
}

func (r *ramSync) session(n *domain.StoredRAMSession, s *child.RAMSession) error {
	n.SessionInfo = storedInfo(s.SessionInfo, r.caps)
	n.Quota = s.Quota
	if n.Dataspaces == nil {
		n.Dataspaces = make(map[domain.Badge]*domain.StoredDataspace)
	}

	st, err := marksweep.Sync(n.Dataspaces, s.Dataspaces, marksweep.Funcs[domain.Badge, *child.Dataspace, *domain.StoredDataspace]{
		Key: func(ds *child.Dataspace) domain.Badge { return ds.Badge },
		Construct: func(ds *child.Dataspace) (*domain.StoredDataspace, error) {
			sd := &domain.StoredDataspace{Badge: ds.Badge}
			if err := r.dataspace(sd, ds); err != nil {
				return nil, err
			}
			return sd, nil
		},
		Update: r.dataspace,
		Release: func(_ domain.Badge, sd *domain.StoredDataspace) {
			r.releaseCopy(sd)
		},
	})
	r.stats.Add(st)
	return err
}

// dataspace refreshes sd from ds, reallocating the copy when the original
// changed identity or size.
func (r *ramSync) dataspace(sd *domain.StoredDataspace, ds *child.Dataspace) error {
	_, excluded := r.exclude[ds.ID]
	sd.Kcap = r.caps.kcap(ds.Badge)
	sd.Cached = ds.Cached

	if sd.Copy != 0 || sd.Excluded {
		if sd.Orig == ds.ID && sd.Size == ds.Size && sd.Excluded == excluded {
			return nil
		}
		r.releaseCopy(sd)
	}

	sd.Orig = ds.ID
	sd.Size = ds.Size
	sd.Excluded = excluded
	sd.Managed = false
	if excluded {
		return nil
	}

	id, err := r.mem.Alloc(r.ctx, ds.Size)
	if err != nil {
		if errors.Is(err, domain.ErrAllocationFailure) {
			return err
		}
		return domain.ErrAllocationFailure.WithCause(err)
	}
	sd.Copy = id
	return nil
}

func (r *ramSync) releaseCopy(sd *domain.StoredDataspace) {
	if sd.Copy == 0 {
		return
	}
	if err := r.mem.Free(r.ctx, sd.Copy); err != nil {
		logger.L(r.ctx).Warn("free copy dataspace failed",
			"badge", sd.Badge, "copy", sd.Copy, "error", err)
	}
	sd.Copy = 0
}

func (r *ramSync) releaseSession(_ domain.Badge, s *domain.StoredRAMSession) {
	r.stats.Released += marksweep.Clear(s.Dataspaces, func(_ domain.Badge, sd *domain.StoredDataspace) {
		r.releaseCopy(sd)
	})
}

// otherSync mirrors every kind except RAM. Nothing it does allocates memory.
type otherSync struct {
	ctx   context.Context
	caps  capMap
	stats marksweep.Stats
}

func (o *otherSync) run(state *domain.State, dir child.Directory) {
	o.stats.Add(mirror(state.CPU, dir.CPU(),
		func(s *child.CPUSession) domain.Badge { return s.Badge }, o.cpu))
	o.stats.Add(mirror(state.PD, dir.PD(),
		func(s *child.PDSession) domain.Badge { return s.Badge }, o.pd))

	if rms, ok := dir.RM(); ok {
		o.stats.Add(mirror(state.RM, rms,
			func(s *child.RMSession) domain.Badge { return s.Badge }, o.rm))
	} else {
		o.skip(domain.KindRM)
	}

	if logs, ok := dir.Log(); ok {
		o.stats.Add(mirror(state.Log, logs,
			func(s *child.LogSession) domain.Badge { return s.Badge },
			func(n *domain.StoredLogSession, s *child.LogSession) {
				n.SessionInfo = storedInfo(s.SessionInfo, o.caps)
			}))
	} else {
		o.skip(domain.KindLog)
	}

	if timers, ok := dir.Timer(); ok {
		o.stats.Add(mirror(state.Timer, timers,
			func(s *child.TimerSession) domain.Badge { return s.Badge },
			func(n *domain.StoredTimerSession, s *child.TimerSession) {
				n.SessionInfo = storedInfo(s.SessionInfo, o.caps)
				n.Sigh = s.Sigh
				n.Timeout = s.Timeout
				n.Periodic = s.Periodic
			}))
	} else {
		o.skip(domain.KindTimer)
	}
}

func (o *otherSync) skip(kind domain.SessionKind) {
	logger.L(o.ctx).Debug("session service not installed, skipping", "kind", kind.String())
}

func (o *otherSync) cpu(n *domain.StoredCPUSession, s *child.CPUSession) {
	n.SessionInfo = storedInfo(s.SessionInfo, o.caps)
	n.Sigh = s.Sigh
	if n.Threads == nil {
		n.Threads = make(map[domain.Badge]*domain.StoredThread)
	}
	o.stats.Add(mirror(n.Threads, s.Threads,
		func(t *child.Thread) domain.Badge { return t.Badge },
		func(st *domain.StoredThread, t *child.Thread) {
			st.Badge = t.Badge
			st.Kcap = o.caps.kcap(t.Badge)
			st.Name = t.Name
			st.Weight = t.Weight
			st.Affinity = t.Affinity
			st.Started = t.Started
			st.Paused = t.Paused
			st.SingleStep = t.SingleStep
			st.Sigh = t.Sigh
			st.State = t.State
		}))
}

func (o *otherSync) pd(n *domain.StoredPDSession, s *child.PDSession) {
	n.SessionInfo = storedInfo(s.SessionInfo, o.caps)
	if n.NativeCaps == nil {
		n.NativeCaps = make(map[domain.Badge]*domain.StoredNativeCap)
		n.SignalSources = make(map[domain.Badge]*domain.StoredSignalSource)
		n.SignalContexts = make(map[domain.Badge]*domain.StoredSignalContext)
	}

	o.stats.Add(mirror(n.NativeCaps, s.NativeCaps,
		func(c *child.NativeCap) domain.Badge { return c.Badge },
		func(sc *domain.StoredNativeCap, c *child.NativeCap) {
			sc.Badge = c.Badge
			sc.Kcap = o.caps.kcap(c.Badge)
			sc.EPBadge = c.EPBadge
		}))
	o.stats.Add(mirror(n.SignalSources, s.SignalSources,
		func(c *child.SignalSource) domain.Badge { return c.Badge },
		func(ss *domain.StoredSignalSource, c *child.SignalSource) {
			ss.Badge = c.Badge
			ss.Kcap = o.caps.kcap(c.Badge)
		}))
	o.stats.Add(mirror(n.SignalContexts, s.SignalContexts,
		func(c *child.SignalContext) domain.Badge { return c.Badge },
		func(sc *domain.StoredSignalContext, c *child.SignalContext) {
			sc.Badge = c.Badge
			sc.Kcap = o.caps.kcap(c.Badge)
			sc.SourceBadge = c.SourceBadge
			sc.Imprint = c.Imprint
		}))

	n.AddressSpace = o.area(n.AddressSpace, s.AddressSpace)
	n.StackArea = o.area(n.StackArea, s.StackArea)
	n.LinkerArea = o.area(n.LinkerArea, s.LinkerArea)
}

func (o *otherSync) rm(n *domain.StoredRMSession, s *child.RMSession) {
	n.SessionInfo = storedInfo(s.SessionInfo, o.caps)
	if n.RegionMaps == nil {
		n.RegionMaps = make(map[domain.Badge]*domain.StoredRegionMap)
	}
	o.stats.Add(mirror(n.RegionMaps, s.RegionMaps,
		func(rm *child.RegionMap) domain.Badge { return rm.Badge },
		o.regionMap))
}

func (o *otherSync) area(n *domain.StoredRegionMap, l *child.RegionMap) *domain.StoredRegionMap {
	if l == nil {
		return nil
	}
	if n == nil {
		n = domain.NewStoredRegionMap()
	}
	o.regionMap(n, l)
	return n
}

func (o *otherSync) regionMap(n *domain.StoredRegionMap, l *child.RegionMap) {
	n.Badge = l.Badge
	n.Kcap = o.caps.kcap(l.Badge)
	n.Size = l.Size
	n.DS = l.DS
	n.Sigh = l.Sigh
	if n.Regions == nil {
		n.Regions = make(map[domain.RegionKey]*domain.StoredAttachedRegion)
	}
	// Managed is left alone here, the managed index sets it after the join.
	o.stats.Add(mirror(n.Regions, l.Regions,
		(*child.AttachedRegion).Key,
		func(r *domain.StoredAttachedRegion, a *child.AttachedRegion) {
			r.DSBadge = a.DSBadge
			r.Kcap = o.caps.kcap(a.DSBadge)
			r.DS = a.DS
			r.RelAddr = a.RelAddr
			r.Size = a.Size
			r.Offset = a.Offset
			r.Executable = a.Executable
		}))
}

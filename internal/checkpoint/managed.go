package checkpoint

import (
	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
)

type plainEntry struct {
	stored *domain.StoredDataspace
	live   *child.Dataspace
}

type managedEntry struct {
	stored *domain.StoredDataspace
	obj    *child.ManagedObject
}

// memoryIndex is the result of the managed index phase.
type memoryIndex struct {
	plain   []plainEntry
	managed []managedEntry
}

// buildIndex classifies every copied RAM dataspace as plain or managed and
// flags managed attachments in the stored region maps.
func buildIndex(state *domain.State, live []*child.RAMSession) memoryIndex {
	var idx memoryIndex
	managedIDs := make(map[domain.DataspaceID]struct{})

	for _, s := range live {
		stored, ok := state.RAM[s.Badge]
		if !ok {
			continue
		}
		for _, ds := range s.Dataspaces {
			sd, ok := stored.Dataspaces[ds.Badge]
			if !ok || sd.Excluded || sd.Copy == 0 {
				continue
			}
			if m, ok := s.Managed(ds.ID); ok {
				sd.Managed = true
				managedIDs[ds.ID] = struct{}{}
				idx.managed = append(idx.managed, managedEntry{stored: sd, obj: m})
				continue
			}
			sd.Managed = false
			idx.plain = append(idx.plain, plainEntry{stored: sd, live: ds})
		}
	}

	flag := func(rm *domain.StoredRegionMap) {
		if rm == nil {
			return
		}
		for _, r := range rm.Regions {
			_, r.Managed = managedIDs[r.DS]
		}
	}
	for _, pd := range state.PD {
		flag(pd.AddressSpace)
		flag(pd.StackArea)
		flag(pd.LinkerArea)
	}
	for _, rm := range state.RM {
		for _, m := range rm.RegionMaps {
			flag(m)
		}
	}
	return idx
}

// detachDirty detaches every attached designated sub-region and returns the
// copy tasks of the cycle. A sub-region is copied when it was attached at
// detach time, or unconditionally when full is set.
func detachDirty(idx memoryIndex, full bool) (tasks []domain.CopyTask, dirty int) {
	for _, e := range idx.plain {
		tasks = append(tasks, domain.CopyTask{
			Kind:   domain.TaskPlain,
			Badge:  e.stored.Badge,
			Source: e.live.ID,
			Dest:   e.stored.Copy,
			Size:   e.live.Size,
		})
	}

	for _, e := range idx.managed {
		for _, r := range e.obj.Regions {
			wasAttached := r.Detach()
			if wasAttached {
				dirty++
			}
			if !wasAttached && !full {
				continue
			}
			tasks = append(tasks, domain.CopyTask{
				Kind:       domain.TaskDirty,
				Badge:      e.stored.Badge,
				Source:     r.Dataspace,
				Dest:       e.stored.Copy,
				DestOffset: r.Offset,
				Size:       r.Size,
			})
		}
	}
	return tasks, dirty
}

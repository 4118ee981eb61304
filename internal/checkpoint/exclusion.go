package checkpoint

import (
	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// ExclusionSet returns the dataspaces backing region maps: the three maps
// of every PD session and, when the service is installed, the region maps
// of every RM session. Their content is bookkeeping of the region-map
// implementation and is never copied.
func ExclusionSet(dir child.Directory) map[domain.DataspaceID]struct{} {
	set := make(map[domain.DataspaceID]struct{})
	add := func(rm *child.RegionMap) {
		if rm != nil && rm.DS != 0 {
			set[rm.DS] = struct{}{}
		}
	}

	for _, pd := range dir.PD() {
		for _, rm := range pd.RegionMaps() {
			add(rm)
		}
	}
	if rms, ok := dir.RM(); ok {
		for _, s := range rms {
			for _, rm := range s.RegionMaps {
				add(rm)
			}
		}
	}
	return set
}

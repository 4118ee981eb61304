package checkpoint

import (
	"context"
	"fmt"
	"sort"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/pkg/marksweep"
)

// capMap is the persisted badge to kernel capability table.
type capMap map[domain.Badge]*domain.CapEntry

var capFuncs = marksweep.Funcs[domain.Badge, domain.CapEntry, *domain.CapEntry]{
	Key: func(e domain.CapEntry) domain.Badge { return e.Badge },
	Construct: func(e domain.CapEntry) (*domain.CapEntry, error) {
		c := e
		return &c, nil
	},
	Update: func(s *domain.CapEntry, e domain.CapEntry) error {
		s.Kcap = e.Kcap
		return nil
	},
}

// rebuild reconciles the map against the child's current capability space.
func (m capMap) rebuild(ctx context.Context, caps child.CapSpace) (marksweep.Stats, error) {
	live, err := caps.Capabilities(ctx)
	if err != nil {
		return marksweep.Stats{}, fmt.Errorf("read capability space: %w", err)
	}
	return marksweep.Sync(m, live, capFuncs)
}

// kcap resolves badge, returning 0 when unknown.
func (m capMap) kcap(badge domain.Badge) domain.Kcap {
	if e, ok := m[badge]; ok {
		return e.Kcap
	}
	return 0
}

// sorted returns a copy of the entries ordered by badge.
func (m capMap) sorted() []domain.CapEntry {
	out := make([]domain.CapEntry, 0, len(m))
	for _, e := range m {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Badge < out[j].Badge })
	return out
}

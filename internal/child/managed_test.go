package child

import (
	"errors"
	"testing"

	"github.com/yndnr/rtcr-go/internal/core/domain"
)

func TestNewManagedObject(t *testing.T) {
	tests := []struct {
		name    string
		size    uint64
		regions [][2]uint64 // offset, size
		wantErr bool
	}{
		{"two halves", 8192, [][2]uint64{{0, 4096}, {4096, 4096}}, false},
		{"unsorted input", 8192, [][2]uint64{{4096, 4096}, {0, 4096}}, false},
		{"uneven", 100, [][2]uint64{{0, 10}, {10, 90}}, false},
		{"gap", 8192, [][2]uint64{{0, 4096}, {5000, 3192}}, true},
		{"overlap", 8192, [][2]uint64{{0, 5000}, {4096, 4096}}, true},
		{"short", 8192, [][2]uint64{{0, 4096}}, true},
		{"past end", 4096, [][2]uint64{{0, 8192}}, true},
		{"empty region", 4096, [][2]uint64{{0, 0}, {0, 4096}}, true},
		{"no regions", 4096, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var regions []*DesignatedRegion
			for i, r := range tt.regions {
				regions = append(regions, NewDesignatedRegion(domain.DataspaceID(i+10), r[0], r[1], false))
			}
			m, err := NewManagedObject(1, tt.size, regions)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewManagedObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, domain.ErrInvalidLayout) {
					t.Errorf("error = %v, want ErrInvalidLayout", err)
				}
				return
			}
			for i := 1; i < len(m.Regions); i++ {
				if m.Regions[i-1].Offset >= m.Regions[i].Offset {
					t.Error("regions not sorted by offset")
				}
			}
		})
	}
}

func TestDesignatedRegion_DetachReportsPrevious(t *testing.T) {
	r := NewDesignatedRegion(1, 0, 4096, true)
	if !r.Detach() {
		t.Error("first Detach() should report attached")
	}
	if r.IsAttached() {
		t.Error("region still attached after Detach()")
	}
	if r.Detach() {
		t.Error("second Detach() should report detached")
	}
	r.Attach()
	if !r.IsAttached() {
		t.Error("Attach() had no effect")
	}
}

func TestManagedObject_AttachedAndRegionAt(t *testing.T) {
	r0 := NewDesignatedRegion(10, 0, 4096, false)
	r1 := NewDesignatedRegion(11, 4096, 4096, true)
	m, err := NewManagedObject(1, 8192, []*DesignatedRegion{r0, r1})
	if err != nil {
		t.Fatal(err)
	}

	att := m.Attached()
	if len(att) != 1 || att[0] != r1 {
		t.Errorf("Attached() = %v, want [r1]", att)
	}

	tests := []struct {
		off  uint64
		want *DesignatedRegion
	}{
		{0, r0},
		{4095, r0},
		{4096, r1},
		{8191, r1},
		{8192, nil},
	}
	for _, tt := range tests {
		got, ok := m.RegionAt(tt.off)
		if tt.want == nil {
			if ok {
				t.Errorf("RegionAt(%#x) = %v, want none", tt.off, got)
			}
			continue
		}
		if !ok || got != tt.want {
			t.Errorf("RegionAt(%#x) = %v, want %v", tt.off, got, tt.want)
		}
	}
}

func TestRAMSession_Managed(t *testing.T) {
	s := &RAMSession{}
	if _, ok := s.Managed(1); ok {
		t.Error("empty session reports managed object")
	}
	m, _ := NewManagedObject(1, 10, []*DesignatedRegion{NewDesignatedRegion(2, 0, 10, false)})
	s.SetManaged(m)
	if got, ok := s.Managed(1); !ok || got != m {
		t.Error("Managed(1) lookup failed")
	}
	s.RemoveManaged(1)
	if _, ok := s.Managed(1); ok {
		t.Error("RemoveManaged had no effect")
	}
}

package memory

import (
	"slices"
	"testing"

	"github.com/yndnr/rtcr-go/internal/core/domain"
)

func TestIDSet(t *testing.T) {
	set := NewIDSet()

	set.Add(1)
	set.Add(2)

	if set.Len() != 2 {
		t.Fatalf("Len = %d, want 2", set.Len())
	}
	if !set.Contains(1) {
		t.Fatal("Contains(1) = false, want true")
	}
	if set.Contains(3) {
		t.Fatal("Contains(3) = true, want false")
	}
	if len(set.Items()) != 2 {
		t.Fatalf("len(Items()) = %d, want 2", len(set.Items()))
	}

	set.Remove(1)
	if set.Len() != 1 || set.Contains(1) {
		t.Fatal("Remove(1) had no effect")
	}
}

func TestOwnerIndex(t *testing.T) {
	idx := NewOwnerIndex()

	idx.Add("ram:1", 10)
	idx.Add("ram:1", 11)
	idx.Add("ram:2", 20)

	got := idx.Get("ram:1")
	slices.Sort(got)
	if !slices.Equal(got, []domain.DataspaceID{10, 11}) {
		t.Errorf("Get(ram:1) = %v, want [10 11]", got)
	}
	if idx.Count("ram:2") != 1 {
		t.Errorf("Count(ram:2) = %d, want 1", idx.Count("ram:2"))
	}
	if idx.Count("unknown") != 0 || idx.Get("unknown") != nil {
		t.Error("unknown owner should be empty")
	}

	idx.Remove("ram:1", 10)
	if idx.Count("ram:1") != 1 {
		t.Errorf("Count(ram:1) after remove = %d, want 1", idx.Count("ram:1"))
	}

	idx.Clear("ram:1")
	if idx.Count("ram:1") != 0 {
		t.Error("Clear(ram:1) had no effect")
	}
	if idx.Count("ram:2") != 1 {
		t.Error("Clear(ram:1) touched ram:2")
	}
}

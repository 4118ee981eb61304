package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SnapshotIDPrefix is the prefix of snapshot ids.
const SnapshotIDPrefix = "ckpt-"

// Mode names the engine that produced a snapshot.
type Mode string

const (
	// ModeIncremental is the parallel dirty-tracking engine.
	ModeIncremental Mode = "incremental"
	// ModeFull is the single-threaded full-copy engine.
	ModeFull Mode = "full"
)

// Snapshot is a fully committed checkpoint handed to the Restorer.
//
// Copy handles point at live copy dataspaces that the next cycle updates in
// place. Consumers that need a stable image read the content before the next
// cycle starts (the archive does this from the scheduler's sink).
type Snapshot struct {
	// ID has the form ckpt-{ulid_lowercase}.
	ID string `json:"id"`

	// Cycle is the engine's cycle counter at commit time.
	Cycle uint64 `json:"cycle"`

	TakenAt time.Time `json:"taken_at"`
	Mode    Mode      `json:"mode"`

	// State is the stored session tree (incremental mode).
	State *State `json:"state,omitempty"`

	// CapMap is sorted by badge.
	CapMap []CapEntry `json:"cap_map,omitempty"`

	// Memory maps a dataspace badge to its copy.
	Memory map[Badge]DataspaceID `json:"memory,omitempty"`

	// Image is the copied address space (full-copy mode).
	Image *Image `json:"image,omitempty"`
}

// Copies returns every copy dataspace referenced by the snapshot, deduplicated.
func (s *Snapshot) Copies() []DataspaceID {
	seen := make(map[DataspaceID]struct{})
	var out []DataspaceID
	add := func(id DataspaceID) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range s.Memory {
		add(id)
	}
	if s.Image != nil {
		for _, set := range [][]CopiedRegion{s.Image.Stack, s.Image.Linker, s.Image.AddressSpace} {
			for _, r := range set {
				add(r.Copy)
			}
		}
	}
	return out
}

// Clone returns a deep copy of the snapshot. Copy handles are shared ids,
// not duplicated memory.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.State = s.State.Clone()
	if s.CapMap != nil {
		c.CapMap = append([]CapEntry(nil), s.CapMap...)
	}
	if s.Memory != nil {
		c.Memory = make(map[Badge]DataspaceID, len(s.Memory))
		for b, id := range s.Memory {
			c.Memory[b] = id
		}
	}
	if s.Image != nil {
		img := Image{
			Stack:        append([]CopiedRegion(nil), s.Image.Stack...),
			Linker:       append([]CopiedRegion(nil), s.Image.Linker...),
			AddressSpace: append([]CopiedRegion(nil), s.Image.AddressSpace...),
			Threads:      append([]CopiedThread(nil), s.Image.Threads...),
		}
		c.Image = &img
	}
	return &c
}

// CopiedRegion is one attached region copied by the full-copy engine.
type CopiedRegion struct {
	DSBadge Badge       `json:"ds_badge"`
	DS      DataspaceID `json:"ds"`
	Copy    DataspaceID `json:"copy"`
	RelAddr uint64      `json:"rel_addr"`
	Size    uint64      `json:"size"`
	Managed bool        `json:"managed"`
}

// CopiedThread is the register state of one thread at checkpoint time.
type CopiedThread struct {
	Badge Badge       `json:"badge"`
	Name  string      `json:"name"`
	State ThreadState `json:"state"`
}

// Image is the output of the full-copy engine.
type Image struct {
	Stack        []CopiedRegion `json:"stack"`
	Linker       []CopiedRegion `json:"linker"`
	AddressSpace []CopiedRegion `json:"address_space"`
	Threads      []CopiedThread `json:"threads"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewSnapshotID generates a new snapshot id using ULID. Ids sort in
// creation order, also within the same millisecond.
func NewSnapshotID() (string, error) {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return SnapshotIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidSnapshotID reports whether id has the snapshot id format.
func IsValidSnapshotID(id string) bool {
	if !strings.HasPrefix(id, SnapshotIDPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(SnapshotIDPrefix):]))
	return err == nil
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Badge is the child-visible handle of an RPC object. Badges are unique
// among the live records of one kind.
type Badge uint16

// Kcap is the kernel capability selector a badge resolves to.
// Zero means "not resolved".
type Kcap uint64

// DataspaceID identifies a memory object inside the memory service.
// Zero is never a valid id.
type DataspaceID uint64

// SessionKind enumerates the resource-session kinds the engine captures.
type SessionKind int

const (
	KindRAM SessionKind = iota
	KindCPU
	KindPD
	KindRM
	KindLog
	KindTimer
)

// Kinds lists every session kind in capture order.
var Kinds = []SessionKind{KindRAM, KindCPU, KindPD, KindRM, KindLog, KindTimer}

// String returns the lower-case name of the kind.
func (k SessionKind) String() string {
	switch k {
	case KindRAM:
		return "ram"
	case KindCPU:
		return "cpu"
	case KindPD:
		return "pd"
	case KindRM:
		return "rm"
	case KindLog:
		return "log"
	case KindTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Optional reports whether the child may run without this kind's service.
func (k SessionKind) Optional() bool {
	return k == KindRM || k == KindLog || k == KindTimer
}

// CapEntry is one (badge, kernel capability) pair of the child's capability space.
type CapEntry struct {
	Badge Badge `json:"badge"`
	Kcap  Kcap  `json:"kcap"`
}

// RegionKey identifies an attached region inside one region map.
// The same dataspace may be attached at several addresses.
type RegionKey struct {
	DS      DataspaceID
	RelAddr uint64
}

// String formats the key as "<ds>@<hex reladdr>".
func (k RegionKey) String() string {
	return strconv.FormatUint(uint64(k.DS), 10) + "@" + strconv.FormatUint(k.RelAddr, 16)
}

// MarshalText implements encoding.TextMarshaler so keys survive JSON maps.
func (k RegionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RegionKey) UnmarshalText(text []byte) error {
	ds, addr, ok := strings.Cut(string(text), "@")
	if !ok {
		return fmt.Errorf("region key %q: missing separator", text)
	}
	d, err := strconv.ParseUint(ds, 10, 64)
	if err != nil {
		return fmt.Errorf("region key %q: %w", text, err)
	}
	a, err := strconv.ParseUint(addr, 16, 64)
	if err != nil {
		return fmt.Errorf("region key %q: %w", text, err)
	}
	k.DS = DataspaceID(d)
	k.RelAddr = a
	return nil
}

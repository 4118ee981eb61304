package domain

import "fmt"

// TaskKind selects the copy lane a task travels on.
type TaskKind int

const (
	// TaskPlain copies a whole plain dataspace.
	TaskPlain TaskKind = iota
	// TaskDirty copies one dirty designated sub-region.
	TaskDirty
)

// String returns the lane name.
func (k TaskKind) String() string {
	if k == TaskDirty {
		return "dirty"
	}
	return "plain"
}

// CopyTask is one unit of memory-copy work: Size bytes from the start of
// Source to Dest at DestOffset.
type CopyTask struct {
	Kind       TaskKind    `json:"kind"`
	Badge      Badge       `json:"badge"`
	Source     DataspaceID `json:"source"`
	Dest       DataspaceID `json:"dest"`
	DestOffset uint64      `json:"dest_offset"`
	Size       uint64      `json:"size"`
}

// String formats the task for logs.
func (t CopyTask) String() string {
	return fmt.Sprintf("%s ds=%d src=%d dst=%d+%#x size=%d", t.Kind, t.Badge, t.Source, t.Dest, t.DestOffset, t.Size)
}

// Validate checks the task against the current sizes of its endpoints.
// A mismatch means the recorded attachment no longer matches live memory.
func (t CopyTask) Validate(srcSize, dstSize uint64) error {
	if t.Size == 0 || srcSize != t.Size {
		return ErrCopyTargetMismatch.WithDetails(fmt.Sprintf("source %d has %d bytes, task wants %d", t.Source, srcSize, t.Size))
	}
	if t.DestOffset+t.Size > dstSize || t.DestOffset+t.Size < t.DestOffset {
		return ErrCopyTargetMismatch.WithDetails(fmt.Sprintf("dest %d has %d bytes, task writes [%#x,%#x)", t.Dest, dstSize, t.DestOffset, t.DestOffset+t.Size))
	}
	return nil
}

package checkpoint

// Phase is one step of a checkpoint cycle.
type Phase int

const (
	PhasePause Phase = iota
	PhaseBuildMaps
	PhaseParallelPrepare
	PhaseBuildManagedIndex
	PhaseDetachDirtyTracking
	PhaseParallelCopy
	PhaseCleanup
	PhaseResume
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhasePause,
	PhaseBuildMaps,
	PhaseParallelPrepare,
	PhaseBuildManagedIndex,
	PhaseDetachDirtyTracking,
	PhaseParallelCopy,
	PhaseCleanup,
	PhaseResume,
}

// String returns the snake_case name used in logs, spans and metrics.
func (p Phase) String() string {
	switch p {
	case PhasePause:
		return "pause"
	case PhaseBuildMaps:
		return "build_maps"
	case PhaseParallelPrepare:
		return "parallel_prepare"
	case PhaseBuildManagedIndex:
		return "build_managed_index"
	case PhaseDetachDirtyTracking:
		return "detach_dirty_tracking"
	case PhaseParallelCopy:
		return "parallel_copy"
	case PhaseCleanup:
		return "cleanup"
	case PhaseResume:
		return "resume"
	default:
		return "unknown"
	}
}

// JobKind tags the work a pool goroutine performs.
type JobKind int

const (
	// JobPrepareMemory mirrors the RAM sessions and allocates copies.
	JobPrepareMemory JobKind = iota
	// JobPrepareOther mirrors every non-RAM session kind.
	JobPrepareOther
	// JobCopyPlain copies a whole plain dataspace.
	JobCopyPlain
	// JobCopyDirty copies one dirty designated sub-region.
	JobCopyDirty
)

// String returns the job name.
func (k JobKind) String() string {
	switch k {
	case JobPrepareMemory:
		return "prepare_memory"
	case JobPrepareOther:
		return "prepare_other"
	case JobCopyPlain:
		return "copy_plain"
	case JobCopyDirty:
		return "copy_dirty"
	default:
		return "unknown"
	}
}

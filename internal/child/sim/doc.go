// Package sim is an in-process child runtime for tests and the demo daemon.
//
// A sim.Child implements child.Target on top of a memory.Store. It opens and
// closes sessions of every kind, allocates plain and managed dataspaces,
// attaches regions, and runs threads with register state. Writes into a
// detached designated sub-region fault and re-attach it, which is what the
// incremental engine relies on for dirty tracking.
//
// All mutating calls fail with ErrPaused while the child is paused, so the
// engines observe a frozen child between Pause and Resume.
package sim

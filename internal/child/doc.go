// Package child defines the live view of a supervised child and the
// collaborator contracts the checkpoint engines consume.
//
// Live records (RAMSession, CPUSession, PDSession, RMSession, LogSession,
// TimerSession and their children) are produced by the session directory
// that intercepts the child's resource requests. The engines only read them
// while the child is paused. The one exception is DesignatedRegion's
// attached flag, which fault handling flips concurrently and is therefore
// atomic.
//
// Contracts:
//
//   - Directory: live session lists per kind; RM, log and timer are optional
//   - Supervisor: idempotent Pause/Resume
//   - CapSpace: the child's (badge, kcap) pairs
//   - Memory: dataspace allocation and mapping
package child

// Package shutdown runs cleanup hooks when the daemon is asked to stop.
//
// Hooks run in reverse registration order under one timeout, so the
// component started last (usually the checkpoint scheduler) stops first
// and the child is never left paused.
package shutdown

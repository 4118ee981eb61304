// Package checkpoint implements the incremental checkpoint engine.
//
// One call to Checkpointer.Checkpoint runs a cycle of strictly ordered phases:
//
//   - pause: freeze the child
//   - build_maps: reconcile the capability map, collect region-map dataspaces
//   - parallel_prepare: two helpers mirror the live sessions into the stored
//     state (RAM sessions on one, every other kind on the other)
//   - build_managed_index: split RAM dataspaces into plain and managed ones
//   - detach_dirty_tracking: detach every attached designated sub-region,
//     remembering which ones were attached (dirty)
//   - parallel_copy: a worker pool drains the plain and dirty task lanes
//   - cleanup: drop per-cycle structures and assemble the snapshot
//   - resume: unfreeze the child, on every exit path
//
// A failed cycle withdraws the committed snapshot and makes the next cycle
// copy every sub-region of every managed dataspace, since the failed cycle
// may already have consumed dirty information.
//
// The Scheduler runs cycles periodically and hands each committed snapshot
// to a sink such as the snapshot archive.
package checkpoint

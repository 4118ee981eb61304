// Package memory provides the in-memory dataspace store.
//
// A dataspace is a fixed-size, zero-initialized byte object addressed by a
// domain.DataspaceID. The store backs both the child's memory (in the
// simulated runtime) and the checkpoint copies.
//
// Features:
//
//   - Sharded Storage: objects distributed across cmap shards
//   - Quota: optional byte limit, exceeding it yields domain.ErrAllocationFailure
//   - Owner Index: objects grouped by owner label, freed together on session close
//   - Mapping Counters: Attach/Detach pairs are counted per object
//
// Thread Safety:
//
// All operations are thread-safe. Byte content handed out by Attach is not
// synchronized; callers coordinate writers themselves (the child is paused
// while the engine copies).
package memory

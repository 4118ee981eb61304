// Package storage holds the embedded key-value store behind the snapshot
// archive.
//
// KV is implemented by Badger (Badger v3). The store runs value log GC on
// a timer and reports its size to Prometheus at scrape time.
//
// Subpackages:
//
//   - memory: the in-process memory service holding original and copy dataspaces
//   - snapshot: the archive that persists committed snapshots on a KV
//
// The checkpoint engine itself never touches disk. The scheduler hands each
// committed snapshot to the archive, which reads the copy dataspaces out of
// the memory service and stores their content as deduplicated blobs.
package storage

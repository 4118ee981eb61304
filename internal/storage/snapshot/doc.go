// Package snapshot provides the archive of committed checkpoints.
//
// The archive persists every snapshot handed to it by the scheduler into the
// embedded KV engine:
//
//	meta/<id>    Info header (JSON): cycle, mode, counts, blob digests
//	snap/<id>    the committed snapshot (JSON): stored state, capability map, image
//	blob/<hex>   raw content of one copy dataspace, keyed by murmur3-128 digest
//
// Content blobs are deduplicated by digest, so an unchanged dataspace costs
// nothing on the next cycle. Blob writes go through a token bucket to bound
// disk throughput while the child runs.
//
// Recovery:
//
//  1. Latest walks snapshots from newest to oldest
//  2. Blobs are verified against their digest, corrupt entries are skipped
//  3. The first fully verified snapshot is returned
//
// Retention keeps the newest RetentionCount snapshots plus any younger than
// RetentionDays, never fewer than one. Blobs no snapshot references are
// collected after every prune.
package snapshot

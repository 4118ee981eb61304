// Package marksweep reconciles a stored mirror against a live list.
//
// Sync walks the live list once. Each live element either updates the stored
// entry with the same identity or constructs a new one; both count as a mark.
// Stored entries left unmarked are released and removed. Afterwards the key
// set of the stored map equals the key set of the live list.
//
// The same function serves every session kind and every owned sub-list
// (dataspaces, threads, capabilities, attached regions) by varying the
// callbacks in Funcs.
package marksweep

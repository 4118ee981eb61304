// Package cmap provides a sharded concurrent map keyed by integer ids.
//
// The memory store keeps its dataspace objects and owner index in it.
// Keys are spread over the shards by murmur3 of their little-endian
// bytes, so strided id allocators do not pile up in one shard.
package cmap

// Package main provides rtcr-checkpointd, a daemon that checkpoints a
// simulated child on a fixed interval.
//
// The daemon:
//
//   - boots the sheep counter workload in a simulated child
//   - runs the incremental or full-copy engine every checkpoint.interval
//   - optionally archives each committed snapshot in an embedded badger store
//   - serves Prometheus metrics on metrics.addr
//   - re-reads log.level when the configuration file changes
//
// Usage:
//
//	rtcr-checkpointd [-config /etc/rtcr/rtcr.yaml]
//	rtcr-checkpointd -version
package main

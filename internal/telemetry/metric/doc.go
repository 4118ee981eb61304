// Package metric owns the daemon's Prometheus registry. Engines record
// through the Metrics methods; the memory service is read at scrape time
// by a collector. Every series is prefixed rtcr_ and served on /metrics.
package metric

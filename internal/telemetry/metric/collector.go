package metric

import "github.com/prometheus/client_golang/prometheus"

// MemoryStats is a point-in-time view of the memory service.
type MemoryStats struct {
	Dataspaces int
	Mapped     int
	UsedBytes  uint64
	QuotaBytes uint64
}

// MemorySource reports memory service statistics at scrape time.
type MemorySource func() MemoryStats

// Collector collects memory service metrics on every scrape.
type Collector struct {
	source MemorySource

	dataspaces *prometheus.Desc
	mapped     *prometheus.Desc
	used       *prometheus.Desc
	quota      *prometheus.Desc
}

// NewCollector creates a new memory service collector.
func NewCollector(source MemorySource) *Collector {
	return &Collector{
		source: source,
		dataspaces: prometheus.NewDesc(
			namespace+"_memory_dataspaces",
			"Number of live dataspaces in the memory service",
			nil, nil,
		),
		mapped: prometheus.NewDesc(
			namespace+"_memory_mapped_dataspaces",
			"Number of dataspaces with an open mapping",
			nil, nil,
		),
		used: prometheus.NewDesc(
			namespace+"_memory_used_bytes",
			"Bytes allocated in the memory service",
			nil, nil,
		),
		quota: prometheus.NewDesc(
			namespace+"_memory_quota_bytes",
			"Memory service quota in bytes, 0 if unlimited",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dataspaces
	ch <- c.mapped
	ch <- c.used
	ch <- c.quota
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	s := c.source()
	ch <- prometheus.MustNewConstMetric(c.dataspaces, prometheus.GaugeValue, float64(s.Dataspaces))
	ch <- prometheus.MustNewConstMetric(c.mapped, prometheus.GaugeValue, float64(s.Mapped))
	ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(s.UsedBytes))
	ch <- prometheus.MustNewConstMetric(c.quota, prometheus.GaugeValue, float64(s.QuotaBytes))
}

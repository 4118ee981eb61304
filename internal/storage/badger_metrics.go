package storage

import "github.com/prometheus/client_golang/prometheus"

// kvCollector reads Badger's sizes at scrape time.
type kvCollector struct {
	kv *Badger

	lsm      *prometheus.Desc
	vlog     *prometheus.Desc
	lastGC   *prometheus.Desc
	rewrites *prometheus.Desc
}

// RegisterMetrics exposes the store's disk usage and GC activity on reg.
func (b *Badger) RegisterMetrics(reg prometheus.Registerer) error {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("rtcr", "kv", name), help, nil, nil)
	}
	return reg.Register(&kvCollector{
		kv:       b,
		lsm:      desc("lsm_size_bytes", "Size of the LSM tree in bytes"),
		vlog:     desc("value_log_size_bytes", "Size of the value log in bytes"),
		lastGC:   desc("last_gc_timestamp_seconds", "Unix time of the last value log GC, 0 if none ran"),
		rewrites: desc("gc_rewrites_total", "Value log files rewritten by GC"),
	})
}

func (c *kvCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lsm
	ch <- c.vlog
	ch <- c.lastGC
	ch <- c.rewrites
}

func (c *kvCollector) Collect(ch chan<- prometheus.Metric) {
	st, err := c.kv.Stats()
	if err != nil {
		return
	}
	var last float64
	if !st.LastGC.IsZero() {
		last = float64(st.LastGC.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lsm, prometheus.GaugeValue, float64(st.LSMBytes))
	ch <- prometheus.MustNewConstMetric(c.vlog, prometheus.GaugeValue, float64(st.ValueLogBytes))
	ch <- prometheus.MustNewConstMetric(c.lastGC, prometheus.GaugeValue, last)
	ch <- prometheus.MustNewConstMetric(c.rewrites, prometheus.CounterValue, float64(st.GCRewrites))
}

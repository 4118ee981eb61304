package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rtcr"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal    CounterVec
	PhaseDuration  HistogramVec
	PauseDuration  Histogram
	CycleDuration  Histogram
	LastCycleStamp Gauge

	// Copy metrics
	TasksTotal   CounterVec
	BytesCopied  Counter
	DirtyRegions Gauge

	// Stored state metrics
	StoredSessions GaugeVec
	CapMapSize     Gauge

	// Archive metrics
	ArchiveSnapshots Gauge
	ArchiveBlobBytes Counter
}

// Counter is a cumulative metric that only increases.
type Counter interface {
	Inc()
	Add(float64)
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	WithLabelValues(lvs ...string) prometheus.Counter
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// GaugeVec is a Gauge with labels.
type GaugeVec interface {
	WithLabelValues(lvs ...string) prometheus.Gauge
}

// Histogram samples observations and counts them in buckets.
type Histogram interface {
	Observe(float64)
}

// HistogramVec is a Histogram with labels.
type HistogramVec interface {
	WithLabelValues(lvs ...string) prometheus.Observer
}

// Cycle results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Task events.
const (
	TaskEnqueued  = "enqueued"
	TaskProcessed = "processed"
	TaskDropped   = "dropped"
)

// pauseBuckets cover sub-millisecond to multi-second pause windows.
var pauseBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5}

// NewRegistry creates a new metrics registry with Go runtime and
// process collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{registry: reg}

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_cycles_total",
		Help:      "Checkpoint cycles by result",
	}, []string{"result"})
	phase := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkpoint_phase_duration_seconds",
		Help:      "Duration of each checkpoint phase",
		Buckets:   pauseBuckets,
	}, []string{"phase"})
	pause := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkpoint_pause_duration_seconds",
		Help:      "Time the child stayed paused per cycle",
		Buckets:   pauseBuckets,
	})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkpoint_cycle_duration_seconds",
		Help:      "Wall time of a whole checkpoint cycle",
		Buckets:   pauseBuckets,
	})
	stamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "checkpoint_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful checkpoint",
	})
	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "copy_tasks_total",
		Help:      "Copy tasks by lane and event",
	}, []string{"lane", "event"})
	bytesCopied := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "copy_bytes_total",
		Help:      "Bytes copied into checkpoint memory",
	})
	dirty := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "copy_dirty_regions",
		Help:      "Dirty sub-regions found in the last cycle",
	})
	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_sessions",
		Help:      "Stored session records by kind",
	}, []string{"kind"})
	capmap := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capmap_entries",
		Help:      "Entries in the last capability map",
	})
	snapshots := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "archive_snapshots",
		Help:      "Snapshots retained in the archive",
	})
	blobBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_blob_bytes_total",
		Help:      "Bytes of new memory blobs written to the archive",
	})

	reg.MustRegister(cycles, phase, pause, cycle, stamp, tasks, bytesCopied, dirty,
		sessions, capmap, snapshots, blobBytes)

	r.CyclesTotal = cycles
	r.PhaseDuration = phase
	r.PauseDuration = pause
	r.CycleDuration = cycle
	r.LastCycleStamp = stamp
	r.TasksTotal = tasks
	r.BytesCopied = bytesCopied
	r.DirtyRegions = dirty
	r.StoredSessions = sessions
	r.CapMapSize = capmap
	r.ArchiveSnapshots = snapshots
	r.ArchiveBlobBytes = blobBytes

	return r
}

// Register adds an additional collector such as the memory collector
// or the storage engine gauges.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// RegisterBuildInfo exports a constant 1 gauge labelled with build metadata.
func (r *Registry) RegisterBuildInfo(labels map[string]string) error {
	return r.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build metadata of the running daemon",
		ConstLabels: labels,
	}, func() float64 { return 1 }))
}

// Registerer exposes the underlying registerer.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// RecordCycle counts a finished checkpoint cycle.
func (r *Registry) RecordCycle(result string, seconds float64, unix int64) {
	r.CyclesTotal.WithLabelValues(result).Inc()
	r.CycleDuration.Observe(seconds)
	if result == ResultOK {
		r.LastCycleStamp.Set(float64(unix))
	}
}

// ObservePhase records the duration of one phase.
func (r *Registry) ObservePhase(phase string, seconds float64) {
	r.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// ObservePause records how long the child stayed paused.
func (r *Registry) ObservePause(seconds float64) {
	r.PauseDuration.Observe(seconds)
}

// RecordTask counts a task event on a lane.
func (r *Registry) RecordTask(lane, event string) {
	r.TasksTotal.WithLabelValues(lane, event).Inc()
}

// AddBytesCopied adds to the copied byte counter.
func (r *Registry) AddBytesCopied(n uint64) {
	r.BytesCopied.Add(float64(n))
}

// SetDirtyRegions sets the dirty sub-region gauge.
func (r *Registry) SetDirtyRegions(n int) {
	r.DirtyRegions.Set(float64(n))
}

// SetStoredSessions sets the stored session gauge for a kind.
func (r *Registry) SetStoredSessions(kind string, n int) {
	r.StoredSessions.WithLabelValues(kind).Set(float64(n))
}

// SetCapMapSize sets the capability map gauge.
func (r *Registry) SetCapMapSize(n int) {
	r.CapMapSize.Set(float64(n))
}

// SetArchiveSnapshots sets the retained snapshot gauge.
func (r *Registry) SetArchiveSnapshots(n int) {
	r.ArchiveSnapshots.Set(float64(n))
}

// AddArchiveBlobBytes adds to the archive blob byte counter.
func (r *Registry) AddArchiveBlobBytes(n int) {
	r.ArchiveBlobBytes.Add(float64(n))
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns an HTTP handler for the /metrics endpoint of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

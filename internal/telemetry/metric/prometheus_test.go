package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.CyclesTotal == nil {
		t.Error("CyclesTotal is nil")
	}
	if r.PhaseDuration == nil {
		t.Error("PhaseDuration is nil")
	}
	if r.TasksTotal == nil {
		t.Error("TasksTotal is nil")
	}
	if r.StoredSessions == nil {
		t.Error("StoredSessions is nil")
	}
}

func TestGlobal(t *testing.T) {
	r1 := Global()
	r2 := Global()
	if r1 != r2 {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() returned nil")
	}

	body := scrape(t, h)

	// Check for Go runtime metrics (from GoCollector)
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}

	// Check for process metrics (from ProcessCollector)
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics")
	}
}

func TestCycleMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordCycle(ResultOK, 0.02, 1700000000)
	r.RecordCycle(ResultOK, 0.03, 1700000005)
	r.RecordCycle(ResultFailed, 0.01, 1700000010)
	r.ObservePhase("parallel_copy", 0.004)
	r.ObservePause(0.005)

	body := scrape(t, r.Handler())

	if !strings.Contains(body, `rtcr_checkpoint_cycles_total{result="ok"} 2`) {
		t.Error(`expected rtcr_checkpoint_cycles_total{result="ok"} 2`)
	}
	if !strings.Contains(body, `rtcr_checkpoint_cycles_total{result="failed"} 1`) {
		t.Error(`expected rtcr_checkpoint_cycles_total{result="failed"} 1`)
	}
	// A failed cycle does not move the success stamp.
	if !strings.Contains(body, "rtcr_checkpoint_last_success_timestamp_seconds 1.700000005e+09") {
		t.Error("expected last success stamp of the second cycle")
	}
	if !strings.Contains(body, `rtcr_checkpoint_phase_duration_seconds_count{phase="parallel_copy"} 1`) {
		t.Error("expected phase duration count for parallel_copy")
	}
	if !strings.Contains(body, "rtcr_checkpoint_pause_duration_seconds_bucket") {
		t.Error("expected pause duration buckets")
	}
}

func TestCopyMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordTask("plain", TaskEnqueued)
	r.RecordTask("plain", TaskProcessed)
	r.RecordTask("dirty", TaskEnqueued)
	r.RecordTask("dirty", TaskDropped)
	r.AddBytesCopied(4096)
	r.AddBytesCopied(4096)
	r.SetDirtyRegions(2)

	body := scrape(t, r.Handler())

	for _, want := range []string{
		`rtcr_copy_tasks_total{event="enqueued",lane="plain"} 1`,
		`rtcr_copy_tasks_total{event="processed",lane="plain"} 1`,
		`rtcr_copy_tasks_total{event="dropped",lane="dirty"} 1`,
		"rtcr_copy_bytes_total 8192",
		"rtcr_copy_dirty_regions 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestStateMetrics(t *testing.T) {
	r := NewRegistry()

	r.SetStoredSessions("ram", 1)
	r.SetStoredSessions("cpu", 2)
	r.SetCapMapSize(17)
	r.SetArchiveSnapshots(3)
	r.AddArchiveBlobBytes(1024)

	body := scrape(t, r.Handler())

	for _, want := range []string{
		`rtcr_stored_sessions{kind="ram"} 1`,
		`rtcr_stored_sessions{kind="cpu"} 2`,
		"rtcr_capmap_entries 17",
		"rtcr_archive_snapshots 3",
		"rtcr_archive_blob_bytes_total 1024",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestCollector(t *testing.T) {
	r := NewRegistry()

	c := NewCollector(func() MemoryStats {
		return MemoryStats{Dataspaces: 4, Mapped: 1, UsedBytes: 8192, QuotaBytes: 1 << 20}
	})
	if err := r.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	body := scrape(t, r.Handler())

	for _, want := range []string{
		"rtcr_memory_dataspaces 4",
		"rtcr_memory_mapped_dataspaces 1",
		"rtcr_memory_used_bytes 8192",
		"rtcr_memory_quota_bytes 1.048576e+06",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestCollector_NilSource(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCollector(nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	body := scrape(t, r.Handler())
	if strings.Contains(body, "rtcr_memory_dataspaces ") {
		t.Error("nil source should not emit samples")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordTask("plain", TaskProcessed)
				r.AddBytesCopied(1)
				r.ObservePhase("cleanup", 0.001)
			}
		}()
	}
	wg.Wait()

	body := scrape(t, r.Handler())
	if !strings.Contains(body, `rtcr_copy_tasks_total{event="processed",lane="plain"} 1000`) {
		t.Error("expected 1000 processed plain tasks")
	}
	if !strings.Contains(body, "rtcr_copy_bytes_total 1000") {
		t.Error("expected rtcr_copy_bytes_total 1000")
	}
}

func TestRegisterBuildInfo(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterBuildInfo(map[string]string{"version": "v0.1.0", "commit": "abc"}); err != nil {
		t.Fatalf("RegisterBuildInfo() error = %v", err)
	}
	body := scrape(t, r.Handler())
	if !strings.Contains(body, `rtcr_build_info{commit="abc",version="v0.1.0"} 1`) {
		t.Errorf("build info gauge missing:\n%s", body)
	}
	if err := r.RegisterBuildInfo(map[string]string{"version": "v0.1.0", "commit": "abc"}); err == nil {
		t.Error("registering build info twice should fail")
	}
}

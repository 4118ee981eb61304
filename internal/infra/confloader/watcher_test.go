package confloader

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

func startWatch(t *testing.T, path string, debounce time.Duration) (*Watcher, chan string) {
	t.Helper()
	changed := make(chan string, 16)
	w, err := Watch(path, func(p string) {
		select {
		case changed <- p:
		default:
		}
	}, WithWatcherLogger(logger.Discard()), WithDebounce(debounce))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w, changed
}

func TestWatch_MissingDirectory(t *testing.T) {
	if _, err := Watch("/nonexistent/path/rtcr.yaml", func(string) {}); err == nil {
		t.Error("Watch() should fail for a missing directory")
	}
}

func TestWatcher_ReportsWrite(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	_, changed := startWatch(t, path, 0)

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if filepath.Base(p) != filepath.Base(path) || !filepath.IsAbs(p) {
			t.Errorf("reported path %q, want absolute %s", p, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	var calls atomic.Int32
	w, err := Watch(path, func(string) { calls.Add(1) },
		WithWatcherLogger(logger.Discard()), WithDebounce(150*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times for one burst, want 1", got)
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	_, changed := startWatch(t, path, 0)

	sibling := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(sibling, []byte("x: 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		t.Errorf("unexpected change for %q", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	w, _ := startWatch(t, path, DefaultDebounce)

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

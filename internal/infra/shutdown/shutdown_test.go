package shutdown

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

func recorder(order *[]int, mu *sync.Mutex, id int) func(context.Context) error {
	return func(context.Context) error {
		mu.Lock()
		*order = append(*order, id)
		mu.Unlock()
		return nil
	}
}

func TestHandler_Done(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())
	select {
	case <-h.Done():
		t.Error("Done channel should not be closed initially")
	default:
	}
}

func TestHandler_Wait_ContextCancel(t *testing.T) {
	h := NewHandler(5*time.Second, logger.Discard())

	var (
		mu    sync.Mutex
		order []int
	)
	h.OnShutdown("one", recorder(&order, &mu, 1))
	h.OnShutdown("two", recorder(&order, &mu, 2))
	h.OnShutdown("three", recorder(&order, &mu, 3))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("hooks ran in order %v, want [3 2 1]", order)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Wait")
	}
}

func TestHandler_Wait_Signal(t *testing.T) {
	h := NewHandler(5*time.Second, logger.Discard())
	ran := make(chan struct{}, 1)
	h.OnShutdown("mark", func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after SIGTERM")
	}
	select {
	case <-ran:
	default:
		t.Error("hook did not run")
	}
}

func TestHandler_HookErrorsJoined(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	called := false

	h.OnShutdown("a", func(context.Context) error { return errA })
	h.OnShutdown("ok", func(context.Context) error { called = true; return nil })
	h.OnShutdown("b", func(context.Context) error { return errB })

	err := h.Shutdown()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Shutdown() = %v, want both hook errors", err)
	}
	if !called {
		t.Error("a failing hook must not stop later hooks")
	}
	if again := h.Shutdown(); again != err {
		t.Errorf("second Shutdown() = %v, want the first result", again)
	}
}

func TestHandler_HookTimeout(t *testing.T) {
	h := NewHandler(20*time.Millisecond, logger.Discard())
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := h.Shutdown(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() = %v, want deadline exceeded", err)
	}
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(time.Second, logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(context.Context) error { return nil })
		}()
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hooks) != 10 {
		t.Errorf("hooks = %d, want 10", len(h.hooks))
	}
}

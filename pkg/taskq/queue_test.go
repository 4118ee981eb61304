package taskq

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueues_FIFOPerLane(t *testing.T) {
	q := New[int]()
	for i := 0; i < 3; i++ {
		if err := q.Push(LanePlain, i); err != nil {
			t.Fatal(err)
		}
	}
	q.Close()

	for want := 0; want < 3; want++ {
		got, lane, ok := q.Pop()
		if !ok || got != want || lane != LanePlain {
			t.Fatalf("Pop() = (%d, %s, %v), want (%d, plain, true)", got, lane, ok, want)
		}
	}
	if _, _, ok := q.Pop(); ok {
		t.Error("Pop() on drained closed queue should report false")
	}
}

func TestQueues_AlternatesLanes(t *testing.T) {
	q := New[string]()
	_ = q.Push(LanePlain, "p1")
	_ = q.Push(LanePlain, "p2")
	_ = q.Push(LaneDirty, "d1")
	_ = q.Push(LaneDirty, "d2")
	q.Close()

	var lanes []Lane
	for {
		_, lane, ok := q.Pop()
		if !ok {
			break
		}
		lanes = append(lanes, lane)
	}
	want := []Lane{LanePlain, LaneDirty, LanePlain, LaneDirty}
	if len(lanes) != len(want) {
		t.Fatalf("popped lanes %v, want %v", lanes, want)
	}
	for i := range want {
		if lanes[i] != want[i] {
			t.Errorf("pop %d from %s, want %s", i, lanes[i], want[i])
		}
	}
}

func TestQueues_PushAfterClose(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Close()
	if err := q.Push(LaneDirty, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Push() after Close = %v, want ErrClosed", err)
	}
	if !q.Closed() {
		t.Error("Closed() = false")
	}
}

func TestQueues_InvalidLane(t *testing.T) {
	q := New[int]()
	if err := q.Push(Lane(5), 1); !errors.Is(err, ErrInvalidLane) {
		t.Errorf("Push(5) = %v, want ErrInvalidLane", err)
	}
	if q.Len(Lane(-1)) != 0 {
		t.Error("Len(invalid) should be 0")
	}
	if Lane(9).String() != "invalid" {
		t.Error("unexpected lane name")
	}
}

func TestQueues_PopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	got := make(chan int, 1)
	go func() {
		v, _, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Pop() returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	_ = q.Push(LaneDirty, 42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake after push")
	}
}

func TestQueues_CloseReleasesWaiters(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := q.Pop(); ok {
				t.Error("Pop() returned an item from an empty queue")
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumers still blocked after Close")
	}
}

// 4 consumers, 10 000 items spread over both lanes, producer running
// concurrently: every item is popped exactly once.
func TestQueues_ExactlyOnceUnderLoad(t *testing.T) {
	const workers, total = 4, 10000
	q := New[int]()
	var seen [total]atomic.Int32
	var popped atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, _, ok := q.Pop()
				if !ok {
					return
				}
				seen[v].Add(1)
				popped.Add(1)
			}
		}()
	}

	for i := 0; i < total; i++ {
		lane := LanePlain
		if i%3 == 0 {
			lane = LaneDirty
		}
		if err := q.Push(lane, i); err != nil {
			t.Fatal(err)
		}
	}
	q.Close()
	wg.Wait()

	if popped.Load() != total {
		t.Fatalf("popped %d items, want %d", popped.Load(), total)
	}
	for i := range seen {
		if n := seen[i].Load(); n != 1 {
			t.Fatalf("item %d popped %d times", i, n)
		}
	}
	st := q.Stats()
	if st.Pushed[LanePlain]+st.Pushed[LaneDirty] != total ||
		st.Popped[LanePlain]+st.Popped[LaneDirty] != total {
		t.Errorf("Stats = %+v", st)
	}
	if q.Len(LanePlain) != 0 || q.Len(LaneDirty) != 0 {
		t.Error("lanes not drained")
	}
}

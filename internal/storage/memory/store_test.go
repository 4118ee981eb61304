package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/yndnr/rtcr-go/internal/core/domain"
)

func TestStore_AllocAttachWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	id, err := store.Alloc(ctx, 4096)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	buf, err := store.Attach(ctx, id)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(buf) != 4096 {
		t.Fatalf("len(buf) = %d, want 4096", len(buf))
	}
	for i := range buf {
		if buf[i] != 0 {
			t.Fatalf("byte %d = %#x, want zero-initialized", i, buf[i])
		}
	}
	copy(buf, bytes.Repeat([]byte{0xAA}, 4096))
	if store.Mappings(id) != 1 {
		t.Errorf("Mappings = %d, want 1", store.Mappings(id))
	}
	if err := store.Detach(ctx, id); err != nil {
		t.Fatalf("Detach: %v", err)
	}

	got, err := store.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{0xAA}, 4096)) {
		t.Error("write through mapping not visible")
	}
	if store.Mappings(id) != 0 {
		t.Errorf("Mappings after Read = %d, want 0", store.Mappings(id))
	}

	size, err := store.Size(ctx, id)
	if err != nil || size != 4096 {
		t.Errorf("Size = (%d, %v), want (4096, nil)", size, err)
	}
}

func TestStore_ReadReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	id, _ := store.Alloc(ctx, 8)

	got, _ := store.Read(ctx, id)
	got[0] = 1

	again, _ := store.Read(ctx, id)
	if again[0] != 0 {
		t.Error("Read exposed internal buffer")
	}
}

func TestStore_Quota(t *testing.T) {
	store := New(WithQuota(8192))
	ctx := context.Background()

	a, err := store.Alloc(ctx, 4096)
	if err != nil {
		t.Fatalf("Alloc a: %v", err)
	}
	if _, err := store.Alloc(ctx, 4096); err != nil {
		t.Fatalf("Alloc b: %v", err)
	}

	_, err = store.Alloc(ctx, 1)
	if !errors.Is(err, domain.ErrAllocationFailure) {
		t.Fatalf("Alloc over quota = %v, want ErrAllocationFailure", err)
	}

	if err := store.Free(ctx, a); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, err := store.Alloc(ctx, 4096); err != nil {
		t.Fatalf("Alloc after free: %v", err)
	}

	st := store.Stats()
	if st.UsedBytes != 8192 || st.QuotaBytes != 8192 || st.Dataspaces != 2 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestStore_InvalidAndMissing(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Alloc(ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Alloc(0) = %v, want ErrInvalidArgument", err)
	}
	if err := store.Free(ctx, 99); !errors.Is(err, domain.ErrDataspaceNotFound) {
		t.Errorf("Free(99) = %v, want ErrDataspaceNotFound", err)
	}
	if _, err := store.Attach(ctx, 99); !errors.Is(err, domain.ErrDataspaceNotFound) {
		t.Errorf("Attach(99) = %v, want ErrDataspaceNotFound", err)
	}
	if _, err := store.Size(ctx, 99); !errors.Is(err, domain.ErrDataspaceNotFound) {
		t.Errorf("Size(99) = %v, want ErrDataspaceNotFound", err)
	}
	if err := store.Detach(ctx, 99); err != nil {
		t.Errorf("Detach(99) = %v, want nil", err)
	}

	id, _ := store.Alloc(ctx, 16)
	if err := store.Detach(ctx, id); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unpaired Detach = %v, want ErrInvalidArgument", err)
	}
}

func TestStore_FreeOwner(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.AllocOwned(ctx, "ram:1", 64); err != nil {
			t.Fatal(err)
		}
	}
	keep, _ := store.AllocOwned(ctx, "ram:2", 64)

	if len(store.Owned("ram:1")) != 3 {
		t.Fatalf("Owned(ram:1) = %v", store.Owned("ram:1"))
	}
	if n := store.FreeOwner(ctx, "ram:1"); n != 3 {
		t.Errorf("FreeOwner = %d, want 3", n)
	}
	if store.Stats().Dataspaces != 1 {
		t.Errorf("Dataspaces = %d, want 1", store.Stats().Dataspaces)
	}
	if _, err := store.Size(ctx, keep); err != nil {
		t.Errorf("other owner's dataspace freed: %v", err)
	}
}

func TestStore_ConcurrentAlloc(t *testing.T) {
	store := New(WithQuota(100 * 64))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, failed := 0, 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Alloc(ctx, 64)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			ok++
		}()
	}
	wg.Wait()

	if ok != 100 || failed != 100 {
		t.Errorf("ok=%d failed=%d, want 100/100", ok, failed)
	}
	if store.Stats().UsedBytes != 100*64 {
		t.Errorf("UsedBytes = %d", store.Stats().UsedBytes)
	}
}

func TestStore_StatsMapped(t *testing.T) {
	store := New()
	ctx := context.Background()

	a, _ := store.Alloc(ctx, 32)
	b, _ := store.Alloc(ctx, 32)
	if _, err := store.Attach(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := store.Stats().Mapped; got != 1 {
		t.Errorf("Mapped = %d, want 1", got)
	}
	if _, err := store.Read(ctx, b); err != nil {
		t.Fatal(err)
	}
	if got := store.Stats().Mapped; got != 1 {
		t.Errorf("Mapped after Read = %d, want 1", got)
	}
	if err := store.Detach(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got := store.Stats().Mapped; got != 0 {
		t.Errorf("Mapped after Detach = %d, want 0", got)
	}
}

package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// Workload layout of the sheep counter.
const (
	SheepBinarySize = 16 << 10
	SheepHeapSize   = 256 << 10
	SheepGranule    = 4 << 10
	SheepStackSize  = 64 << 10
)

// SheepCounter is a small workload: a thread that counts sheep into a
// managed heap, leaving a trail of dirty sub-regions behind it.
type SheepCounter struct {
	c      *Child
	PD     *child.PDSession
	RAM    *child.RAMSession
	CPU    *child.CPUSession
	Thread *child.Thread
	Binary *child.Dataspace
	Heap   *child.Dataspace
	Stack  *child.Dataspace
	Log    *child.LogSession
	Timer  *child.TimerSession

	count uint64
}

// BootSheepCounter creates the sessions of the workload in c.
func BootSheepCounter(ctx context.Context, c *Child) (*SheepCounter, error) {
	w := &SheepCounter{c: c}
	var err error

	if w.PD, err = c.OpenPD("label=sheep_counter"); err != nil {
		return nil, fmt.Errorf("open pd: %w", err)
	}
	if w.RAM, err = c.OpenRAM("ram_quota=1M", 1<<20); err != nil {
		return nil, fmt.Errorf("open ram: %w", err)
	}
	if w.CPU, err = c.OpenCPU("priority=0"); err != nil {
		return nil, fmt.Errorf("open cpu: %w", err)
	}
	if w.Binary, err = c.Alloc(ctx, w.RAM, SheepBinarySize); err != nil {
		return nil, fmt.Errorf("alloc binary: %w", err)
	}
	if w.Stack, err = c.Alloc(ctx, w.RAM, SheepStackSize); err != nil {
		return nil, fmt.Errorf("alloc stack: %w", err)
	}
	if w.Heap, _, err = c.AllocManaged(ctx, w.RAM, SheepHeapSize, SheepGranule); err != nil {
		return nil, fmt.Errorf("alloc heap: %w", err)
	}

	if _, err = c.AttachRegionMap(w.PD.AddressSpace, w.PD.StackArea, 0x4000_0000); err != nil {
		return nil, err
	}
	if _, err = c.AttachRegionMap(w.PD.AddressSpace, w.PD.LinkerArea, 0x5000_0000); err != nil {
		return nil, err
	}
	if _, err = c.AttachRegion(w.PD.AddressSpace, w.Binary, 0x1000_0000, true); err != nil {
		return nil, err
	}
	if _, err = c.AttachRegion(w.PD.AddressSpace, w.Heap, 0x2000_0000, false); err != nil {
		return nil, err
	}
	if _, err = c.AttachRegion(w.PD.StackArea, w.Stack, 0, false); err != nil {
		return nil, err
	}

	ep, err := c.AllocNativeCap(w.PD, 0)
	if err != nil {
		return nil, err
	}
	src, err := c.AllocSignalSource(w.PD)
	if err != nil {
		return nil, err
	}
	if _, err = c.AllocSignalContext(w.PD, src, uint64(ep.Badge)); err != nil {
		return nil, err
	}
	if w.Thread, err = c.CreateThread(w.CPU, "main", 0x1000_0000, 0x4000_0000+SheepStackSize); err != nil {
		return nil, err
	}

	if w.Log, err = c.OpenLog("sheep_counter"); err != nil && !errors.Is(err, domain.ErrServiceMissing) {
		return nil, err
	}
	if w.Timer, err = c.OpenTimer("timeout=1s"); err != nil && !errors.Is(err, domain.ErrServiceMissing) {
		return nil, err
	}
	if w.Timer != nil {
		if err = c.SetTimeout(w.Timer, 1_000_000, true); err != nil {
			return nil, err
		}
	}

	banner := []byte("sheep counter\x00")
	if err := c.Write(ctx, w.Binary.ID, 0, banner); err != nil {
		return nil, err
	}
	return w, nil
}

// Tick counts one sheep. Returns ErrPaused while the child is paused.
func (w *SheepCounter) Tick(ctx context.Context) error {
	n := w.count + 1
	var rec [8]byte
	binary.LittleEndian.PutUint64(rec[:], n)

	// One record per 8 bytes, wrapping around the heap.
	off := (n * 8) % SheepHeapSize
	if err := w.c.Write(ctx, w.Heap.ID, off, rec[:]); err != nil {
		return err
	}
	if err := w.c.Write(ctx, w.Stack.ID, SheepStackSize-8, rec[:]); err != nil {
		return err
	}
	if err := w.c.Step(w.Thread, 4); err != nil {
		return err
	}
	w.count = n
	return nil
}

// Count returns the number of sheep counted so far.
func (w *SheepCounter) Count() uint64 { return w.count }

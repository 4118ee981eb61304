package sim

import (
	"context"
	"fmt"
	"slices"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// OpenRAM opens a memory-allocation session.
func (c *Child) OpenRAM(args string, quota uint64) (*child.RAMSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	s := &child.RAMSession{SessionInfo: info(c.badge(), args), Quota: quota}
	c.ram = append(c.ram, s)
	return s, nil
}

// CloseRAM closes a RAM session and frees all of its memory.
func (c *Child) CloseRAM(ctx context.Context, s *child.RAMSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(c.ram, s) {
		return ErrUnknown
	}
	for _, ds := range s.Dataspaces {
		c.drop(ds.Badge)
		delete(c.owner, ds.ID)
	}
	c.drop(s.Badge)
	c.mem.FreeOwner(ctx, ramOwner(s))
	c.ram = slices.DeleteFunc(c.ram, func(r *child.RAMSession) bool { return r == s })
	return nil
}

// Alloc allocates a plain dataspace from s.
func (c *Child) Alloc(ctx context.Context, s *child.RAMSession, size uint64) (*child.Dataspace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if !slices.Contains(c.ram, s) {
		return nil, ErrUnknown
	}
	id, err := c.mem.AllocOwned(ctx, ramOwner(s), size)
	if err != nil {
		return nil, err
	}
	ds := &child.Dataspace{Badge: c.badge(), ID: id, Size: size, Cached: true}
	s.Dataspaces = append(s.Dataspaces, ds)
	c.owner[id] = s
	return ds, nil
}

// AllocManaged allocates a managed dataspace of size bytes split into
// sub-regions of granule bytes. Sub-regions start detached.
func (c *Child) AllocManaged(ctx context.Context, s *child.RAMSession, size, granule uint64) (*child.Dataspace, *child.ManagedObject, error) {
	if granule == 0 || size%granule != 0 {
		return nil, nil, domain.ErrInvalidLayout.WithDetails(fmt.Sprintf("size %d is not a multiple of granule %d", size, granule))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, nil, err
	}
	if !slices.Contains(c.ram, s) {
		return nil, nil, ErrUnknown
	}

	mid := c.virtualID()
	var regions []*child.DesignatedRegion
	for off := uint64(0); off < size; off += granule {
		id, err := c.mem.AllocOwned(ctx, ramOwner(s), granule)
		if err != nil {
			for _, r := range regions {
				_ = c.mem.Free(ctx, r.Dataspace)
			}
			return nil, nil, err
		}
		regions = append(regions, child.NewDesignatedRegion(id, off, granule, false))
	}
	m, err := child.NewManagedObject(mid, size, regions)
	if err != nil {
		return nil, nil, err
	}
	ds := &child.Dataspace{Badge: c.badge(), ID: mid, Size: size, Cached: true}
	s.Dataspaces = append(s.Dataspaces, ds)
	s.SetManaged(m)
	c.owner[mid] = s
	return ds, m, nil
}

// Free releases a dataspace of s, including a managed object's sub-regions.
func (c *Child) Free(ctx context.Context, s *child.RAMSession, ds *child.Dataspace) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(s.Dataspaces, ds) {
		return ErrUnknown
	}
	if m, ok := s.Managed(ds.ID); ok {
		for _, r := range m.Regions {
			_ = c.mem.Free(ctx, r.Dataspace)
		}
		s.RemoveManaged(ds.ID)
	} else if err := c.mem.Free(ctx, ds.ID); err != nil {
		return err
	}
	c.drop(ds.Badge)
	delete(c.owner, ds.ID)
	s.Dataspaces = slices.DeleteFunc(s.Dataspaces, func(d *child.Dataspace) bool { return d == ds })
	return nil
}

// Write stores data at offset of dataspace id. A write that touches a
// detached designated sub-region faults and attaches it first.
func (c *Child) Write(ctx context.Context, id domain.DataspaceID, offset uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	s, ok := c.owner[id]
	if !ok {
		return ErrUnknown
	}

	m, managed := s.Managed(id)
	if !managed {
		return c.writeRaw(ctx, id, offset, data)
	}
	if offset+uint64(len(data)) > m.Size {
		return domain.ErrInvalidArgument.WithDetails("write past end of managed dataspace")
	}
	for len(data) > 0 {
		r, _ := m.RegionAt(offset)
		if !r.IsAttached() {
			r.Attach()
			c.faults++
		}
		n := min(uint64(len(data)), r.Offset+r.Size-offset)
		if err := c.writeRaw(ctx, r.Dataspace, offset-r.Offset, data[:n]); err != nil {
			return err
		}
		offset += n
		data = data[n:]
	}
	return nil
}

// Read returns size bytes at offset of dataspace id without faulting.
func (c *Child) Read(ctx context.Context, id domain.DataspaceID, offset, size uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.owner[id]
	if !ok {
		return nil, ErrUnknown
	}
	out := make([]byte, 0, size)
	m, managed := s.Managed(id)
	if !managed {
		buf, err := c.mem.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if offset+size > uint64(len(buf)) {
			return nil, domain.ErrInvalidArgument.WithDetails("read past end of dataspace")
		}
		return append(out, buf[offset:offset+size]...), nil
	}
	end := offset + size
	if end > m.Size {
		return nil, domain.ErrInvalidArgument.WithDetails("read past end of managed dataspace")
	}
	for offset < end {
		r, _ := m.RegionAt(offset)
		buf, err := c.mem.Read(ctx, r.Dataspace)
		if err != nil {
			return nil, err
		}
		stop := min(end, r.Offset+r.Size)
		out = append(out, buf[offset-r.Offset:stop-r.Offset]...)
		offset = stop
	}
	return out, nil
}

func (c *Child) writeRaw(ctx context.Context, id domain.DataspaceID, offset uint64, data []byte) error {
	buf, err := c.mem.Attach(ctx, id)
	if err != nil {
		return err
	}
	defer c.mem.Detach(ctx, id)
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return domain.ErrInvalidArgument.WithDetails("write past end of dataspace")
	}
	copy(buf[offset:], data)
	return nil
}

// ShareRegionMap lists the dataspace backing rm in s, as a child does when it
// hands a region map around as a dataspace. The entry has no memory of its own.
func (c *Child) ShareRegionMap(s *child.RAMSession, rm *child.RegionMap) (*child.Dataspace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if !slices.Contains(c.ram, s) {
		return nil, ErrUnknown
	}
	ds := &child.Dataspace{Badge: rm.Badge, ID: rm.DS, Size: rm.Size}
	s.Dataspaces = append(s.Dataspaces, ds)
	return ds, nil
}

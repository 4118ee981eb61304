package sim

import (
	"slices"

	"github.com/yndnr/rtcr-go/internal/child"
	"github.com/yndnr/rtcr-go/internal/core/domain"
)

// OpenCPU opens a scheduling session.
func (c *Child) OpenCPU(args string) (*child.CPUSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	s := &child.CPUSession{SessionInfo: info(c.badge(), args)}
	c.cpu = append(c.cpu, s)
	return s, nil
}

// CloseCPU closes a scheduling session and kills its threads.
func (c *Child) CloseCPU(s *child.CPUSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(c.cpu, s) {
		return ErrUnknown
	}
	for _, th := range s.Threads {
		c.drop(th.Badge)
	}
	c.drop(s.Badge)
	c.cpu = slices.DeleteFunc(c.cpu, func(x *child.CPUSession) bool { return x == s })
	return nil
}

// CreateThread starts a thread in s with an initial instruction and stack pointer.
func (c *Child) CreateThread(s *child.CPUSession, name string, ip, sp uint64) (*child.Thread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if !slices.Contains(c.cpu, s) {
		return nil, ErrUnknown
	}
	th := &child.Thread{
		Badge:   c.badge(),
		Name:    name,
		Weight:  10,
		Started: true,
		State:   domain.ThreadState{IP: ip, SP: sp},
	}
	s.Threads = append(s.Threads, th)
	return th, nil
}

// KillThread removes a thread from s.
func (c *Child) KillThread(s *child.CPUSession, th *child.Thread) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(s.Threads, th) {
		return ErrUnknown
	}
	c.drop(th.Badge)
	s.Threads = slices.DeleteFunc(s.Threads, func(x *child.Thread) bool { return x == th })
	return nil
}

// Step advances a thread: the instruction pointer moves by n and the first
// general purpose register counts steps.
func (c *Child) Step(th *child.Thread, n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	th.State.IP += n
	th.State.GPR[0]++
	return nil
}

// OpenPD opens a protection-domain session with its three region maps.
func (c *Child) OpenPD(args string) (*child.PDSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	s := &child.PDSession{
		SessionInfo:  info(c.badge(), args),
		AddressSpace: c.regionMap(DefaultAddressSpaceSize),
		StackArea:    c.regionMap(DefaultStackAreaSize),
		LinkerArea:   c.regionMap(DefaultLinkerAreaSize),
	}
	c.pd = append(c.pd, s)
	return s, nil
}

// ClosePD closes a protection-domain session.
func (c *Child) ClosePD(s *child.PDSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(c.pd, s) {
		return ErrUnknown
	}
	for _, nc := range s.NativeCaps {
		c.drop(nc.Badge)
	}
	for _, ss := range s.SignalSources {
		c.drop(ss.Badge)
	}
	for _, sc := range s.SignalContexts {
		c.drop(sc.Badge)
	}
	for _, rm := range s.RegionMaps() {
		c.drop(rm.Badge)
	}
	c.drop(s.Badge)
	c.pd = slices.DeleteFunc(c.pd, func(x *child.PDSession) bool { return x == s })
	return nil
}

// AllocNativeCap allocates a native capability for entrypoint ep.
func (c *Child) AllocNativeCap(s *child.PDSession, ep domain.Badge) (*child.NativeCap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	nc := &child.NativeCap{Badge: c.badge(), EPBadge: ep}
	s.NativeCaps = append(s.NativeCaps, nc)
	return nc, nil
}

// FreeNativeCap releases a native capability.
func (c *Child) FreeNativeCap(s *child.PDSession, nc *child.NativeCap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(s.NativeCaps, nc) {
		return ErrUnknown
	}
	c.drop(nc.Badge)
	s.NativeCaps = slices.DeleteFunc(s.NativeCaps, func(x *child.NativeCap) bool { return x == nc })
	return nil
}

// AllocSignalSource creates a signal source.
func (c *Child) AllocSignalSource(s *child.PDSession) (*child.SignalSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	ss := &child.SignalSource{Badge: c.badge()}
	s.SignalSources = append(s.SignalSources, ss)
	return ss, nil
}

// AllocSignalContext binds a new signal context to src.
func (c *Child) AllocSignalContext(s *child.PDSession, src *child.SignalSource, imprint uint64) (*child.SignalContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	sc := &child.SignalContext{Badge: c.badge(), SourceBadge: src.Badge, Imprint: imprint}
	s.SignalContexts = append(s.SignalContexts, sc)
	return sc, nil
}

// AttachRegion attaches ds into rm at relAddr.
func (c *Child) AttachRegion(rm *child.RegionMap, ds *child.Dataspace, relAddr uint64, executable bool) (*child.AttachedRegion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if relAddr+ds.Size > rm.Size {
		return nil, domain.ErrInvalidArgument.WithDetails("region exceeds region map")
	}
	ar := &child.AttachedRegion{
		DSBadge:    ds.Badge,
		DS:         ds.ID,
		RelAddr:    relAddr,
		Size:       ds.Size,
		Executable: executable,
	}
	rm.Regions = append(rm.Regions, ar)
	return ar, nil
}

// AttachRegionMap attaches the dataspace of sub into rm at relAddr, as a
// child does with its stack and linker areas.
func (c *Child) AttachRegionMap(rm, sub *child.RegionMap, relAddr uint64) (*child.AttachedRegion, error) {
	return c.AttachRegion(rm, &child.Dataspace{Badge: sub.Badge, ID: sub.DS, Size: sub.Size}, relAddr, false)
}

// DetachRegion removes the region at relAddr from rm.
func (c *Child) DetachRegion(rm *child.RegionMap, relAddr uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	n := len(rm.Regions)
	rm.Regions = slices.DeleteFunc(rm.Regions, func(r *child.AttachedRegion) bool { return r.RelAddr == relAddr })
	if len(rm.Regions) == n {
		return ErrUnknown
	}
	return nil
}

// OpenRM opens a region-mapping session.
func (c *Child) OpenRM(args string) (*child.RMSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if !c.hasRM {
		return nil, domain.ErrServiceMissing.WithDetails("rm")
	}
	s := &child.RMSession{SessionInfo: info(c.badge(), args)}
	c.rm = append(c.rm, s)
	return s, nil
}

// CreateRegionMap creates a region map of size bytes in s.
func (c *Child) CreateRegionMap(s *child.RMSession, size uint64) (*child.RegionMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	rm := c.regionMap(size)
	s.RegionMaps = append(s.RegionMaps, rm)
	return rm, nil
}

// CloseRM closes a region-mapping session.
func (c *Child) CloseRM(s *child.RMSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(c.rm, s) {
		return ErrUnknown
	}
	for _, rm := range s.RegionMaps {
		c.drop(rm.Badge)
	}
	c.drop(s.Badge)
	c.rm = slices.DeleteFunc(c.rm, func(x *child.RMSession) bool { return x == s })
	return nil
}

// OpenLog opens a log session labelled label.
func (c *Child) OpenLog(label string) (*child.LogSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if !c.hasLog {
		return nil, domain.ErrServiceMissing.WithDetails("log")
	}
	s := &child.LogSession{SessionInfo: info(c.badge(), "label="+label)}
	c.log = append(c.log, s)
	return s, nil
}

// CloseLog closes a log session.
func (c *Child) CloseLog(s *child.LogSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(c.log, s) {
		return ErrUnknown
	}
	c.drop(s.Badge)
	c.log = slices.DeleteFunc(c.log, func(x *child.LogSession) bool { return x == s })
	return nil
}

// OpenTimer opens a timer session.
func (c *Child) OpenTimer(args string) (*child.TimerSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return nil, err
	}
	if !c.hasTimer {
		return nil, domain.ErrServiceMissing.WithDetails("timer")
	}
	s := &child.TimerSession{SessionInfo: info(c.badge(), args)}
	c.timer = append(c.timer, s)
	return s, nil
}

// SetTimeout programs a timer session.
func (c *Child) SetTimeout(s *child.TimerSession, us uint64, periodic bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	s.Timeout, s.Periodic = us, periodic
	return nil
}

// CloseTimer closes a timer session.
func (c *Child) CloseTimer(s *child.TimerSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.running(); err != nil {
		return err
	}
	if !slices.Contains(c.timer, s) {
		return ErrUnknown
	}
	c.drop(s.Badge)
	c.timer = slices.DeleteFunc(c.timer, func(x *child.TimerSession) bool { return x == s })
	return nil
}

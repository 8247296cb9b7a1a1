package audio

import (
	"context"
	"fmt"
	"sync"
)

// SetCall records one MemoryProvider.SetVolume invocation.
type SetCall struct {
	Session Session
	Level   float32
}

// MemoryProvider is an in-process Provider for tests and dry runs.
type MemoryProvider struct {
	mu       sync.Mutex
	devices  []Device
	sessions map[string][]Session
	setErr   map[int]error
	listErr  error
	calls    []SetCall
	lists    int
	next     int
}

// NewMemoryProvider creates a provider with one default device holding sessions.
func NewMemoryProvider(device string, sessions ...Session) *MemoryProvider {
	p := &MemoryProvider{
		sessions: make(map[string][]Session),
		setErr:   make(map[int]error),
	}
	p.devices = append(p.devices, Device{ID: device, Description: device, Default: true})
	for _, s := range sessions {
		p.addLocked(device, s)
	}
	return p
}

// AddDevice registers another output device.
func (p *MemoryProvider) AddDevice(d Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append(p.devices, d)
}

// AddSession attaches s to the device with the given ID, assigning a handle when empty.
func (p *MemoryProvider) AddSession(device string, s Session) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(device, s)
}

func (p *MemoryProvider) addLocked(device string, s Session) Session {
	if s.Handle == "" {
		p.next++
		s.Handle = fmt.Sprintf("mem-%d", p.next)
	}
	s.Device = device
	p.sessions[device] = append(p.sessions[device], s)
	return s
}

// RemovePID drops every session owned by pid.
func (p *MemoryProvider) RemovePID(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for device, list := range p.sessions {
		kept := list[:0]
		for _, s := range list {
			if s.PID != pid {
				kept = append(kept, s)
			}
		}
		p.sessions[device] = kept
	}
}

// FailSetVolume makes SetVolume return err for sessions owned by pid.
func (p *MemoryProvider) FailSetVolume(pid int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setErr[pid] = err
}

// FailList makes ListSessions and Devices return err; nil clears it.
func (p *MemoryProvider) FailList(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

// SetCalls returns a copy of every recorded SetVolume call.
func (p *MemoryProvider) SetCalls() []SetCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SetCall(nil), p.calls...)
}

// ListCalls reports how many times ListSessions ran.
func (p *MemoryProvider) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lists
}

func (p *MemoryProvider) Devices(context.Context) ([]Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]Device(nil), p.devices...), nil
}

func (p *MemoryProvider) ListSessions(_ context.Context, device string) ([]Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	if p.listErr != nil {
		return nil, p.listErr
	}
	d, ok := p.findDeviceLocked(device)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
	}
	return append([]Session(nil), p.sessions[d.ID]...), nil
}

func (p *MemoryProvider) SetVolume(_ context.Context, session Session, level float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, SetCall{Session: session, Level: level})
	if err := p.setErr[session.PID]; err != nil {
		return err
	}
	s := p.lookupLocked(session.Handle)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionGone, session.Handle)
	}
	s.Volume = level
	return nil
}

func (p *MemoryProvider) GetVolume(_ context.Context, session Session) (float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.lookupLocked(session.Handle)
	if s == nil {
		return 0, fmt.Errorf("%w: %s", ErrSessionGone, session.Handle)
	}
	return s.Volume, nil
}

func (p *MemoryProvider) findDeviceLocked(name string) (Device, bool) {
	return FindDevice(p.devices, name)
}

func (p *MemoryProvider) lookupLocked(handle string) *Session {
	for _, list := range p.sessions {
		for i := range list {
			if list[i].Handle == handle {
				return &list[i]
			}
		}
	}
	return nil
}

//go:build windows

package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
)

// S_FALSE from CoInitializeEx: COM already initialized on this thread.
const oleSFalse = 0x00000001

// WCAProvider controls per-process audio sessions through the Windows Core
// Audio session manager. Each call runs on a locked OS thread with its own
// COM apartment and releases every interface it acquires.
type WCAProvider struct{}

// NewWCAProvider returns a Core Audio provider.
func NewWCAProvider() *WCAProvider {
	return &WCAProvider{}
}

// Close is a no-op; no COM state outlives a call.
func (*WCAProvider) Close() error {
	return nil
}

type wcaSession struct {
	control *wca.IAudioSessionControl2
	volume  *wca.ISimpleAudioVolume
	pid     int
}

func (s wcaSession) release() {
	if s.volume != nil {
		s.volume.Release()
	}
	if s.control != nil {
		s.control.Release()
	}
}

type wcaEndpoint struct {
	device    *wca.IMMDevice
	id        string
	name      string
	isDefault bool
}

func (*WCAProvider) Devices(_ context.Context) ([]Device, error) {
	var devices []Device
	err := withCOM(func() error {
		return withEndpoints(func(endpoints []wcaEndpoint) error {
			for _, ep := range endpoints {
				devices = append(devices, Device{ID: ep.id, Description: ep.name, Default: ep.isDefault})
			}
			return nil
		})
	})
	return devices, err
}

func (*WCAProvider) ListSessions(_ context.Context, device string) ([]Session, error) {
	var sessions []Session
	err := withCOM(func() error {
		return withDeviceSessions(device, func(endpointID string, list []wcaSession) error {
			ordinals := make(map[int]int, len(list))
			for _, s := range list {
				ordinal := ordinals[s.pid]
				ordinals[s.pid]++
				var level float32
				if err := s.volume.GetMasterVolume(&level); err != nil {
					continue
				}
				sessions = append(sessions, Session{
					Handle:   ordinalHandle(s.pid, ordinal),
					Device:   endpointID,
					PID:      s.pid,
					Volume:   level,
					Channels: 1,
				})
			}
			return nil
		})
	})
	return sessions, err
}

// SetVolume applies level to the session its handle names, or to every
// session the pid owns when the handle is empty. ISimpleAudioVolume only
// accepts [0,1], so level is clamped.
func (*WCAProvider) SetVolume(_ context.Context, session Session, level float32) error {
	level = Clamp(level)
	return withCOM(func() error {
		return withDeviceSessions(sessionDevice(session), func(_ string, list []wcaSession) error {
			return applyToSession(list, session, func(s wcaSession) error {
				return s.volume.SetMasterVolume(level, nil)
			})
		})
	})
}

func (*WCAProvider) GetVolume(_ context.Context, session Session) (float32, error) {
	var level float32
	err := withCOM(func() error {
		return withDeviceSessions(sessionDevice(session), func(_ string, list []wcaSession) error {
			return applyToSession(list, session, func(s wcaSession) error {
				return s.volume.GetMasterVolume(&level)
			})
		})
	})
	return level, err
}

func sessionDevice(session Session) string {
	if session.Device == "" {
		return DefaultDevice
	}
	return session.Device
}

func applyToSession(list []wcaSession, session Session, fn func(wcaSession) error) error {
	owners := make([]int, len(list))
	for i, s := range list {
		owners[i] = s.pid
	}
	picked := selectOwned(owners, session)
	if len(picked) == 0 {
		return fmt.Errorf("%w: pid %d", ErrSessionGone, session.PID)
	}
	for _, i := range picked {
		if err := fn(list[i]); err != nil {
			return fmt.Errorf("pid %d: %w", session.PID, err)
		}
	}
	return nil
}

func withCOM(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != oleSFalse {
			return fmt.Errorf("initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()
	return fn()
}

func withEndpoints(fn func([]wcaEndpoint) error) error {
	var enumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &enumerator); err != nil {
		return fmt.Errorf("create device enumerator: %w", err)
	}
	defer enumerator.Release()

	defaultID := ""
	var defaultDevice *wca.IMMDevice
	if err := enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &defaultDevice); err == nil {
		_ = defaultDevice.GetId(&defaultID)
		defaultDevice.Release()
	}

	var collection *wca.IMMDeviceCollection
	if err := enumerator.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &collection); err != nil {
		return fmt.Errorf("enumerate endpoints: %w", err)
	}
	defer collection.Release()

	var count uint32
	if err := collection.GetCount(&count); err != nil {
		return fmt.Errorf("count endpoints: %w", err)
	}

	endpoints := make([]wcaEndpoint, 0, count)
	defer func() {
		for _, ep := range endpoints {
			ep.device.Release()
		}
	}()
	for i := uint32(0); i < count; i++ {
		var device *wca.IMMDevice
		if err := collection.Item(i, &device); err != nil {
			continue
		}
		ep := wcaEndpoint{device: device, name: friendlyName(device)}
		_ = device.GetId(&ep.id)
		ep.isDefault = ep.id != "" && ep.id == defaultID
		endpoints = append(endpoints, ep)
	}
	return fn(endpoints)
}

func friendlyName(device *wca.IMMDevice) string {
	var store *wca.IPropertyStore
	if err := device.OpenPropertyStore(wca.STGM_READ, &store); err != nil {
		return ""
	}
	defer store.Release()

	var value wca.PROPVARIANT
	if err := store.GetValue(&wca.PKEY_Device_FriendlyName, &value); err != nil {
		return ""
	}
	return value.String()
}

func withDeviceSessions(device string, fn func(endpointID string, sessions []wcaSession) error) error {
	return withEndpoints(func(endpoints []wcaEndpoint) error {
		var endpoint *wcaEndpoint
		for i := range endpoints {
			d := Device{ID: endpoints[i].id, Description: endpoints[i].name, Default: endpoints[i].isDefault}
			if matchDevice(d, device) {
				endpoint = &endpoints[i]
				break
			}
		}
		if endpoint == nil {
			return fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
		}

		var manager *wca.IAudioSessionManager2
		if err := endpoint.device.Activate(wca.IID_IAudioSessionManager2, wca.CLSCTX_ALL, nil, &manager); err != nil {
			return fmt.Errorf("activate session manager: %w", err)
		}
		defer manager.Release()

		var sessionEnum *wca.IAudioSessionEnumerator
		if err := manager.GetSessionEnumerator(&sessionEnum); err != nil {
			return fmt.Errorf("enumerate sessions: %w", err)
		}
		defer sessionEnum.Release()

		var count int
		if err := sessionEnum.GetCount(&count); err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}

		sessions := make([]wcaSession, 0, count)
		defer func() {
			for _, s := range sessions {
				s.release()
			}
		}()
		for i := 0; i < count; i++ {
			s, ok := openSession(sessionEnum, i)
			if ok {
				sessions = append(sessions, s)
			}
		}
		return fn(endpoint.id, sessions)
	})
}

func openSession(sessionEnum *wca.IAudioSessionEnumerator, i int) (wcaSession, bool) {
	var control *wca.IAudioSessionControl
	if err := sessionEnum.GetSession(i, &control); err != nil {
		return wcaSession{}, false
	}
	defer control.Release()

	dispatch, err := control.QueryInterface(wca.IID_IAudioSessionControl2)
	if err != nil {
		return wcaSession{}, false
	}
	control2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))

	var pid uint32
	if err := control2.GetProcessId(&pid); err != nil || pid == 0 {
		// System sounds and multi-process sessions have no single owner.
		control2.Release()
		return wcaSession{}, false
	}

	dispatch, err = control2.QueryInterface(wca.IID_ISimpleAudioVolume)
	if err != nil {
		control2.Release()
		return wcaSession{}, false
	}
	return wcaSession{
		control: control2,
		volume:  (*wca.ISimpleAudioVolume)(unsafe.Pointer(dispatch)),
		pid:     int(pid),
	}, true
}

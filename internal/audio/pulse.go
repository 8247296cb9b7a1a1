package audio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	pulseVolumeNorm = 0x10000
	// PA_VOLUME_MAX; larger values overflow the protocol's volume range.
	pulseVolumeMax = 0x7fffffff

	propProcessID     = "application.process.id"
	propProcessBinary = "application.process.binary"
	propAppName       = "application.name"
)

// PulseProvider controls sink inputs (playback streams) on a PulseAudio or
// PipeWire-Pulse server. One client connection is reused across calls and
// re-established after a failed request.
type PulseProvider struct {
	mu     sync.Mutex
	client *pulse.Client
}

// NewPulseProvider returns a provider that connects on first use.
func NewPulseProvider() *PulseProvider {
	return &PulseProvider{}
}

// Close drops the server connection.
func (p *PulseProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	return nil
}

// Devices lists sinks with the default flagged.
func (p *PulseProvider) Devices(_ context.Context) ([]Device, error) {
	var devices []Device
	err := p.do(func(c *pulse.Client) error {
		sinks, defaultName, err := listSinks(c)
		if err != nil {
			return err
		}
		devices = devicesFromSinks(sinks, defaultName)
		return nil
	})
	return devices, err
}

// ListSessions returns sink inputs currently playing to device.
func (p *PulseProvider) ListSessions(_ context.Context, device string) ([]Session, error) {
	var sessions []Session
	err := p.do(func(c *pulse.Client) error {
		sinks, defaultName, err := listSinks(c)
		if err != nil {
			return err
		}
		sink := findSink(sinks, defaultName, device)
		if sink == nil {
			return fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
		}

		var inputs pulseproto.GetSinkInputInfoListReply
		if err := c.RawRequest(&pulseproto.GetSinkInputInfoList{}, &inputs); err != nil {
			return fmt.Errorf("list sink inputs: %w", err)
		}
		sessions = sessionsForSink(inputs, sink)
		return nil
	})
	return sessions, err
}

// SetVolume writes level to every channel of the session's sink input.
func (p *PulseProvider) SetVolume(_ context.Context, session Session, level float32) error {
	index, err := parseSinkInputHandle(session.Handle)
	if err != nil {
		return err
	}
	return p.do(func(c *pulse.Client) error {
		info, err := lookupSinkInput(c, index, session.PID)
		if err != nil {
			return err
		}
		req := &pulseproto.SetSinkInputVolume{
			SinkInputIndex: index,
			ChannelVolumes: channelVolumes(len(info.ChannelVolumes), level),
		}
		if err := c.RawRequest(req, nil); err != nil {
			return fmt.Errorf("set sink input %d volume: %w", index, err)
		}
		return nil
	})
}

// GetVolume reads the average channel level of the session's sink input.
func (p *PulseProvider) GetVolume(_ context.Context, session Session) (float32, error) {
	index, err := parseSinkInputHandle(session.Handle)
	if err != nil {
		return 0, err
	}
	var level float32
	err = p.do(func(c *pulse.Client) error {
		info, err := lookupSinkInput(c, index, session.PID)
		if err != nil {
			return err
		}
		level = averageVolume(info.ChannelVolumes)
		return nil
	})
	return level, err
}

// do runs fn against a live client, reconnecting lazily. Errors other than
// missing devices or sessions drop the connection.
func (p *PulseProvider) do(fn func(*pulse.Client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		client, err := pulse.NewClient(
			pulse.ClientApplicationName("volmixer"),
			pulse.ClientApplicationIconName("audio-volume-high"),
		)
		if err != nil {
			return fmt.Errorf("connect pulse server: %w", err)
		}
		p.client = client
	}

	err := fn(p.client)
	if err != nil && !errors.Is(err, ErrDeviceNotFound) && !errors.Is(err, ErrSessionGone) {
		p.client.Close()
		p.client = nil
	}
	return err
}

func listSinks(c *pulse.Client) (pulseproto.GetSinkInfoListReply, string, error) {
	var sinks pulseproto.GetSinkInfoListReply
	if err := c.RawRequest(&pulseproto.GetSinkInfoList{}, &sinks); err != nil {
		return nil, "", fmt.Errorf("list sinks: %w", err)
	}
	defaultName := ""
	if sink, err := c.DefaultSink(); err == nil && sink != nil {
		defaultName = sink.ID()
	}
	return sinks, defaultName, nil
}

// lookupSinkInput fetches one sink input and checks it still belongs to pid.
func lookupSinkInput(c *pulse.Client, index uint32, pid int) (*pulseproto.GetSinkInputInfoReply, error) {
	var info pulseproto.GetSinkInputInfoReply
	if err := c.RawRequest(&pulseproto.GetSinkInputInfo{SinkInputIndex: index}, &info); err != nil {
		var inputs pulseproto.GetSinkInputInfoListReply
		if lerr := c.RawRequest(&pulseproto.GetSinkInputInfoList{}, &inputs); lerr != nil {
			return nil, fmt.Errorf("get sink input %d: %w", index, err)
		}
		return nil, fmt.Errorf("%w: sink input %d", ErrSessionGone, index)
	}
	if pid > 0 && propertyPID(info.Properties) != pid {
		return nil, fmt.Errorf("%w: sink input %d no longer owned by pid %d", ErrSessionGone, index, pid)
	}
	return &info, nil
}

func devicesFromSinks(sinks pulseproto.GetSinkInfoListReply, defaultName string) []Device {
	devices := make([]Device, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          sink.SinkName,
			Description: sink.Device,
			Default:     sink.SinkName == defaultName,
		})
	}
	return devices
}

func findSink(sinks pulseproto.GetSinkInfoListReply, defaultName string, device string) *pulseproto.GetSinkInfoReply {
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		d := Device{ID: sink.SinkName, Description: sink.Device, Default: sink.SinkName == defaultName}
		if matchDevice(d, device) {
			return sink
		}
	}
	return nil
}

func sessionsForSink(inputs pulseproto.GetSinkInputInfoListReply, sink *pulseproto.GetSinkInfoReply) []Session {
	sessions := make([]Session, 0, len(inputs))
	for _, input := range inputs {
		if input == nil || input.SinkIndex != sink.SinkIndex {
			continue
		}
		sessions = append(sessions, Session{
			Handle:   strconv.FormatUint(uint64(input.SinkInputIndex), 10),
			Device:   sink.SinkName,
			PID:      propertyPID(input.Properties),
			Name:     sessionName(input),
			Volume:   averageVolume(input.ChannelVolumes),
			Channels: len(input.ChannelVolumes),
		})
	}
	return sessions
}

func sessionName(input *pulseproto.GetSinkInputInfoReply) string {
	if name := propertyString(input.Properties, propProcessBinary); name != "" {
		return name
	}
	if name := propertyString(input.Properties, propAppName); name != "" {
		return name
	}
	return input.MediaName
}

// propertyString reads a proplist entry; values are NUL terminated on the wire.
func propertyString(props pulseproto.PropList, key string) string {
	entry, ok := props[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(string(entry), "\x00"))
}

func propertyPID(props pulseproto.PropList) int {
	pid, err := strconv.Atoi(propertyString(props, propProcessID))
	if err != nil || pid < 0 {
		return 0
	}
	return pid
}

func parseSinkInputHandle(handle string) (uint32, error) {
	index, err := strconv.ParseUint(handle, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid sink input handle %q: %w", handle, err)
	}
	return uint32(index), nil
}

func averageVolume(volumes pulseproto.ChannelVolumes) float32 {
	if len(volumes) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range volumes {
		sum += uint64(v)
	}
	return float32(float64(sum) / float64(len(volumes)) / pulseVolumeNorm)
}

func channelVolumes(channels int, level float32) pulseproto.ChannelVolumes {
	if channels <= 0 {
		channels = 1
	}
	raw := uint32(float64(sanitize(level, pulseVolumeMax/pulseVolumeNorm)) * pulseVolumeNorm)
	volumes := make(pulseproto.ChannelVolumes, channels)
	for i := range volumes {
		volumes[i] = raw
	}
	return volumes
}

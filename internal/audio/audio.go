// Package audio abstracts per-application playback sessions on an output device.
package audio

import (
	"context"
	"errors"
	"math"
	"strings"
)

// DefaultDevice selects the system's default output device.
const DefaultDevice = "default"

var (
	// ErrDeviceNotFound reports that no output device matches the configured name.
	ErrDeviceNotFound = errors.New("audio device not found")
	// ErrSessionGone reports that a session disappeared between listing and use.
	ErrSessionGone = errors.New("audio session gone")
)

// Session is one application's audio stream on a device.
type Session struct {
	// Handle is the provider's identifier for the stream.
	Handle string
	// Device is the ID of the output device the stream plays to.
	Device   string
	PID      int
	Name     string
	Volume   float32
	Channels int
}

// Device describes one output device.
type Device struct {
	ID          string
	Description string
	Default     bool
}

// Provider lists sessions and applies linear volume levels (1.0 is unity).
type Provider interface {
	ListSessions(ctx context.Context, device string) ([]Session, error)
	SetVolume(ctx context.Context, session Session, level float32) error
	GetVolume(ctx context.Context, session Session) (float32, error)
	Devices(ctx context.Context) ([]Device, error)
}

// Clamp limits level to [0,1]; NaN becomes 0.
func Clamp(level float32) float32 {
	return sanitize(level, 1)
}

func sanitize(level float32, upper float32) float32 {
	if math.IsNaN(float64(level)) || level < 0 {
		return 0
	}
	if level > upper {
		return upper
	}
	return level
}

// matchDevice reports whether name selects d, case-insensitively by id or description.
func matchDevice(d Device, name string) bool {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, DefaultDevice) {
		return d.Default
	}
	return strings.EqualFold(d.ID, name) || strings.EqualFold(d.Description, name)
}

// FindDevice returns the first device that name selects.
func FindDevice(devices []Device, name string) (Device, bool) {
	for _, d := range devices {
		if matchDevice(d, name) {
			return d, true
		}
	}
	return Device{}, false
}

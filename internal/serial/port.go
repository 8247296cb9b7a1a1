// Package serial owns the controller's serial link: retry-governed open and
// newline-framed reads.
package serial

import (
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"

	"github.com/rbright/volmixer/internal/config"
)

// Port is an open byte stream from the controller.
type Port interface {
	io.ReadCloser
}

// Settings describes how to open the port.
type Settings struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	MaxRetries  int
}

// SettingsFromConfig maps the serial config section to open settings.
func SettingsFromConfig(cfg config.SerialConfig) Settings {
	return Settings{
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		MaxRetries:  cfg.MaxRetries,
	}
}

// Opener opens a single port attempt.
type Opener interface {
	Open(Settings) (Port, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(Settings) (Port, error)

func (f OpenerFunc) Open(s Settings) (Port, error) {
	return f(s)
}

// TarmOpener opens real serial devices, 8N1.
type TarmOpener struct{}

func (TarmOpener) Open(s Settings) (Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        s.Port,
		Baud:        s.BaudRate,
		ReadTimeout: s.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", s.Port, err)
	}
	return p, nil
}

package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MaxLineLength bounds an unterminated line before it is discarded.
const MaxLineLength = 4096

// hangupReads is how many consecutive instant empty reads mark a port as gone.
const hangupReads = 3

var (
	// ErrClosed is returned by ReadLine once the link has been closed.
	ErrClosed = errors.New("serial link closed")
	// ErrDisconnected reports a port that keeps returning no data without
	// waiting for the read timeout, as a hung-up tty does.
	ErrDisconnected = errors.New("serial device disconnected")
)

// Link is an open port with line framing. ReadLine must be called from a
// single goroutine; Close may be called from any goroutine and unblocks it.
type Link struct {
	settings Settings
	port     Port
	logger   *slog.Logger

	buf      []byte
	chunk    []byte
	fastEOFs int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newLink(s Settings, port Port, logger *slog.Logger) *Link {
	return &Link{
		settings: s,
		port:     port,
		logger:   logger,
		buf:      make([]byte, 0, 256),
		chunk:    make([]byte, 256),
	}
}

// Name returns the device path the link was opened on.
func (l *Link) Name() string {
	return l.settings.Port
}

// ReadLine blocks until a full line arrives and returns it without the
// trailing "\r\n" or "\n". Blank lines are returned as "".
func (l *Link) ReadLine() (string, error) {
	for {
		if l.closed.Load() {
			return "", ErrClosed
		}

		if i := bytes.IndexByte(l.buf, '\n'); i >= 0 {
			line := string(bytes.TrimRight(l.buf[:i], "\r"))
			n := copy(l.buf, l.buf[i+1:])
			l.buf = l.buf[:n]
			return line, nil
		}
		if len(l.buf) > MaxLineLength {
			l.logger.Warn("discarding unterminated serial data", "port", l.settings.Port, "bytes", len(l.buf))
			l.buf = l.buf[:0]
		}

		started := time.Now()
		n, err := l.port.Read(l.chunk)
		if n > 0 {
			l.buf = append(l.buf, l.chunk[:n]...)
			l.fastEOFs = 0
		}
		if err == nil {
			continue
		}
		if l.closed.Load() {
			return "", ErrClosed
		}
		// tarm reports an expired read timeout as io.EOF. An empty read that
		// did not wait for the timeout comes from a device that went away.
		if errors.Is(err, io.EOF) && l.settings.ReadTimeout > 0 {
			if n > 0 || time.Since(started) >= l.settings.ReadTimeout/2 {
				l.fastEOFs = 0
				continue
			}
			l.fastEOFs++
			if l.fastEOFs < hangupReads {
				continue
			}
			l.logger.Warn("serial port returns empty reads without waiting", "port", l.settings.Port, "reads", l.fastEOFs)
			return "", fmt.Errorf("read %s: %w", l.settings.Port, ErrDisconnected)
		}
		return "", fmt.Errorf("read %s: %w", l.settings.Port, err)
	}
}

// Close releases the port. It is safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}

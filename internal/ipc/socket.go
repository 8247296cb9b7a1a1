package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SocketName is the control socket's file name inside the runtime directory.
const SocketName = "volmixer.sock"

var ErrAlreadyRunning = errors.New("volmixer already running")

// RuntimeSocketPath places the socket in $XDG_RUNTIME_DIR, or in a per-user
// directory under the system temp dir when that is unset.
func RuntimeSocketPath() string {
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, SocketName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("volmixer-%d", os.Getuid()), SocketName)
}

// AcquireOptions tunes single-instance socket acquisition.
type AcquireOptions struct {
	ProbeTimeout time.Duration
	Retries      int
	Logger       *slog.Logger
}

// Acquire listens on path, replacing a stale socket left by a dead instance.
// A socket that still answers yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		logger.Info("removing stale control socket", "path", path, "attempt", attempt+1)
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use") ||
		strings.Contains(err.Error(), "Only one usage of each socket address")
}

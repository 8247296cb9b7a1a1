// Package mapping resolves configured application names to live process ids
// and caches the result per application.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rbright/volmixer/internal/audio"
	"github.com/rbright/volmixer/internal/proc"
)

// ProcessSet is the set of pids bound to one application.
type ProcessSet map[int]struct{}

// NewProcessSet builds a set from pids.
func NewProcessSet(pids ...int) ProcessSet {
	set := make(ProcessSet, len(pids))
	for _, pid := range pids {
		set[pid] = struct{}{}
	}
	return set
}

// Contains reports whether pid is in the set.
func (s ProcessSet) Contains(pid int) bool {
	_, ok := s[pid]
	return ok
}

// PIDs returns the members in ascending order.
func (s ProcessSet) PIDs() []int {
	pids := make([]int, 0, len(s))
	for pid := range s {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// Clone returns an independent copy.
func (s ProcessSet) Clone() ProcessSet {
	out := make(ProcessSet, len(s))
	for pid := range s {
		out[pid] = struct{}{}
	}
	return out
}

// ApplicationResolver finds the processes of one application.
type ApplicationResolver interface {
	Resolve(ctx context.Context, app string) (ProcessSet, error)
}

// Resolver matches audio sessions on one device against process names.
type Resolver struct {
	Provider  audio.Provider
	Processes proc.Table
	Device    string
	Logger    *slog.Logger
}

// Resolve returns every pid that owns a session on the device and whose
// process name matches app. No match yields an empty set; a provider failure
// is returned as an error.
func (r Resolver) Resolve(ctx context.Context, app string) (ProcessSet, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessions, err := r.Provider.ListSessions(ctx, r.Device)
	if err != nil {
		return nil, fmt.Errorf("list sessions on %q: %w", r.Device, err)
	}

	set := make(ProcessSet)
	checked := make(map[int]bool, len(sessions))
	for _, session := range sessions {
		if session.PID <= 0 {
			continue
		}
		if matched, seen := checked[session.PID]; seen {
			if matched {
				set[session.PID] = struct{}{}
			}
			continue
		}

		name, err := r.Processes.Name(ctx, session.PID)
		if err != nil {
			if errors.Is(err, proc.ErrNotFound) {
				logger.Warn("session owner exited during resolve", "pid", session.PID, "application", app)
			} else {
				logger.Warn("process name lookup failed", "pid", session.PID, "application", app, "error", err)
			}
			checked[session.PID] = false
			continue
		}

		matched := MatchesApplication(name, app)
		checked[session.PID] = matched
		if matched {
			set[session.PID] = struct{}{}
		}
	}
	return set, nil
}

// MatchesApplication compares a process name with a configured application
// name, ignoring case and a trailing ".exe" on either side.
func MatchesApplication(processName, app string) bool {
	a := trimExe(strings.TrimSpace(processName))
	b := trimExe(strings.TrimSpace(app))
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

func trimExe(name string) string {
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}

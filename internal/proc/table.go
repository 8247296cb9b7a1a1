// Package proc queries the OS process table.
package proc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotFound reports a pid that is not (or no longer) running.
var ErrNotFound = errors.New("process not found")

// Table answers liveness and name queries for pids.
type Table interface {
	Exists(ctx context.Context, pid int) (bool, error)
	Name(ctx context.Context, pid int) (string, error)
	List(ctx context.Context) ([]int, error)
}

// SystemTable reads the live process table.
type SystemTable struct{}

func (SystemTable) Exists(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return process.PidExistsWithContext(ctx, int32(pid))
}

func (SystemTable) Name(ctx context.Context, pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return "", fmt.Errorf("%w: pid %d", ErrNotFound, pid)
		}
		return "", fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		// The process can exit between the two calls.
		if ok, _ := process.PidExistsWithContext(ctx, int32(pid)); !ok {
			return "", fmt.Errorf("%w: pid %d", ErrNotFound, pid)
		}
		return "", fmt.Errorf("read name of pid %d: %w", pid, err)
	}
	return name, nil
}

func (SystemTable) List(ctx context.Context) ([]int, error) {
	raw, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	pids := make([]int, 0, len(raw))
	for _, pid := range raw {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	return pids, nil
}

// MemoryTable is a mutable in-process table for tests and dry runs.
type MemoryTable struct {
	mu    sync.RWMutex
	names map[int]string
}

// NewMemoryTable seeds a table with pid -> name entries.
func NewMemoryTable(entries map[int]string) *MemoryTable {
	names := make(map[int]string, len(entries))
	for pid, name := range entries {
		names[pid] = name
	}
	return &MemoryTable{names: names}
}

func (t *MemoryTable) Add(pid int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[pid] = name
}

func (t *MemoryTable) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.names, pid)
}

func (t *MemoryTable) Exists(_ context.Context, pid int) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.names[pid]
	return ok, nil
}

func (t *MemoryTable) Name(_ context.Context, pid int) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[pid]
	if !ok {
		return "", fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}
	return name, nil
}

func (t *MemoryTable) List(context.Context) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pids := make([]int, 0, len(t.names))
	for pid := range t.names {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

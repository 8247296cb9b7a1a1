package mapping

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Trigger names why a resolution ran.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerMiss    Trigger = "miss"
	TriggerEmpty   Trigger = "empty"
	TriggerStale   Trigger = "stale"
	TriggerRefresh Trigger = "refresh"
)

// Option customizes a Table.
type Option func(*Table)

// WithResolveHook observes every resolution attempt.
func WithResolveHook(fn func(app string, trigger Trigger, set ProcessSet, err error)) Option {
	return func(t *Table) {
		t.onResolve = fn
	}
}

// Table caches application -> ProcessSet. Entries are replaced whole; readers
// always receive copies.
type Table struct {
	resolver  ApplicationResolver
	logger    *slog.Logger
	onResolve func(app string, trigger Trigger, set ProcessSet, err error)

	mu      sync.RWMutex
	entries map[string]ProcessSet
}

// New returns an empty table.
func New(resolver ApplicationResolver, logger *slog.Logger, opts ...Option) *Table {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Table{
		resolver: resolver,
		logger:   logger,
		entries:  make(map[string]ProcessSet),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Build resolves each distinct non-empty application in pins once.
// It never fails: unresolvable applications are stored empty and retried on use.
func Build(ctx context.Context, resolver ApplicationResolver, pins map[string]string, logger *slog.Logger, opts ...Option) *Table {
	t := New(resolver, logger, opts...)

	keys := make([]string, 0, len(pins))
	for key := range pins {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := make(map[string]struct{}, len(pins))
	for _, key := range keys {
		app := pins[key]
		if strings.TrimSpace(app) == "" {
			t.logger.Warn("pin has no application; skipping", "pin", key)
			continue
		}
		if _, ok := seen[app]; ok {
			continue
		}
		seen[app] = struct{}{}

		set, err := t.resolve(ctx, app, TriggerStartup)
		if err != nil {
			t.logger.Warn("initial resolve failed", "application", app, "error", err)
		} else if len(set) == 0 {
			t.logger.Warn("no running processes for application", "application", app)
		}
		t.store(app, set)
	}
	return t
}

// GetOrResolve returns the cached set for app, resolving when the entry is
// missing or empty.
func (t *Table) GetOrResolve(ctx context.Context, app string) (ProcessSet, error) {
	t.mu.RLock()
	set, ok := t.entries[app]
	t.mu.RUnlock()
	if ok && len(set) > 0 {
		return set.Clone(), nil
	}

	trigger := TriggerMiss
	if ok {
		trigger = TriggerEmpty
	}
	set, err := t.resolve(ctx, app, trigger)
	if err != nil {
		return ProcessSet{}, err
	}
	t.store(app, set)
	return set.Clone(), nil
}

// InvalidateAndResolve replaces the entry for app with a fresh resolution.
// On error the entry is stored empty so the next lookup retries.
func (t *Table) InvalidateAndResolve(ctx context.Context, app string) (ProcessSet, error) {
	return t.replace(ctx, app, TriggerStale)
}

// RefreshAll re-resolves every known application. It returns the first error
// and keeps going for the rest.
func (t *Table) RefreshAll(ctx context.Context) error {
	var firstErr error
	for _, app := range t.Applications() {
		if _, err := t.replace(ctx, app, TriggerRefresh); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Applications returns the cached application names, sorted.
func (t *Table) Applications() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	apps := make([]string, 0, len(t.entries))
	for app := range t.entries {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Snapshot returns a deep copy of every entry as sorted pid lists.
func (t *Table) Snapshot() map[string][]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]int, len(t.entries))
	for app, set := range t.entries {
		out[app] = set.PIDs()
	}
	return out
}

func (t *Table) replace(ctx context.Context, app string, trigger Trigger) (ProcessSet, error) {
	set, err := t.resolve(ctx, app, trigger)
	if err != nil {
		t.store(app, ProcessSet{})
		return ProcessSet{}, err
	}
	t.store(app, set)
	return set.Clone(), nil
}

func (t *Table) resolve(ctx context.Context, app string, trigger Trigger) (ProcessSet, error) {
	set, err := t.resolver.Resolve(ctx, app)
	if set == nil {
		set = ProcessSet{}
	}
	if t.onResolve != nil {
		t.onResolve(app, trigger, set, err)
	}
	if err == nil {
		t.logger.Debug("application resolved", "application", app, "trigger", string(trigger), "pids", set.PIDs())
	}
	return set, err
}

func (t *Table) store(app string, set ProcessSet) {
	if set == nil {
		set = ProcessSet{}
	}
	t.mu.Lock()
	t.entries[app] = set.Clone()
	t.mu.Unlock()
}

// Package engine routes decoded serial messages to per-application volume.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/volmixer/internal/audio"
	"github.com/rbright/volmixer/internal/config"
	"github.com/rbright/volmixer/internal/events"
	"github.com/rbright/volmixer/internal/fsm"
	"github.com/rbright/volmixer/internal/ipc"
	"github.com/rbright/volmixer/internal/mapping"
	"github.com/rbright/volmixer/internal/metrics"
	"github.com/rbright/volmixer/internal/proc"
	"github.com/rbright/volmixer/internal/serial"
)

// ErrLinkLost reports that the serial link failed while running.
var ErrLinkLost = errors.New("serial link lost")

// Options wires an Engine. Opener, Provider and Processes are required.
type Options struct {
	Config    config.Config
	Opener    serial.Opener
	Provider  audio.Provider
	Processes proc.Table
	Metrics   *metrics.Metrics
	Events    events.Publisher
	Logger    *slog.Logger

	// RetryInterval overrides the pause between serial open attempts.
	RetryInterval time.Duration
}

// Stats is a snapshot of routing counters.
type Stats struct {
	Lines         uint64
	DecodeErrors  uint64
	Unrouted      uint64
	Applied       uint64
	ApplyErrors   uint64
	Resolutions   uint64
	Invalidations uint64
}

type counters struct {
	lines         atomic.Uint64
	decodeErrors  atomic.Uint64
	unrouted      atomic.Uint64
	applied       atomic.Uint64
	applyErrors   atomic.Uint64
	resolutions   atomic.Uint64
	invalidations atomic.Uint64
}

// Engine owns one controller link and the application mapping table.
type Engine struct {
	cfg           config.Config
	opener        serial.Opener
	provider      audio.Provider
	processes     proc.Table
	table         *mapping.Table
	metrics       *metrics.Metrics
	events        events.Publisher
	logger        *slog.Logger
	runID         string
	retryInterval time.Duration

	mu    sync.RWMutex
	state fsm.State

	stats counters
}

// New builds the mapping table from cfg.Pins and returns a stopped engine.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Opener == nil {
		return nil, errors.New("engine: serial opener is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("engine: audio provider is required")
	}
	if opts.Processes == nil {
		return nil, errors.New("engine: process table is required")
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	runID := uuid.NewString()
	e := &Engine{
		cfg:           opts.Config,
		opener:        opts.Opener,
		provider:      opts.Provider,
		processes:     opts.Processes,
		metrics:       opts.Metrics,
		events:        opts.Events,
		logger:        opts.Logger.With("component", "engine", "run_id", runID),
		runID:         runID,
		retryInterval: opts.RetryInterval,
		state:         fsm.StateStopped,
	}
	e.publishState(fsm.StateStopped)

	resolver := mapping.Resolver{
		Provider:  opts.Provider,
		Processes: opts.Processes,
		Device:    opts.Config.Audio.Device,
		Logger:    opts.Logger.With("component", "resolver"),
	}
	e.table = mapping.Build(ctx, resolver, opts.Config.Pins, opts.Logger.With("component", "mapping"),
		mapping.WithResolveHook(func(_ string, trigger mapping.Trigger, _ mapping.ProcessSet, _ error) {
			e.stats.resolutions.Add(1)
			e.metrics.Resolution(string(trigger))
		}),
	)
	return e, nil
}

// RunID identifies this engine instance in logs and status output.
func (e *Engine) RunID() string {
	return e.runID
}

// Table exposes the mapping table.
func (e *Engine) Table() *mapping.Table {
	return e.table
}

// State returns the current lifecycle state.
func (e *Engine) State() fsm.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Lines:         e.stats.lines.Load(),
		DecodeErrors:  e.stats.decodeErrors.Load(),
		Unrouted:      e.stats.unrouted.Load(),
		Applied:       e.stats.applied.Load(),
		ApplyErrors:   e.stats.applyErrors.Load(),
		Resolutions:   e.stats.resolutions.Load(),
		Invalidations: e.stats.invalidations.Load(),
	}
}

func (e *Engine) transition(event fsm.Event) error {
	e.mu.Lock()
	next, err := fsm.Transition(e.state, event)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	e.mu.Unlock()

	e.publishState(next)
	e.logger.Debug("engine state changed", "event", string(event), "state", string(next))
	return nil
}

func (e *Engine) publishState(state fsm.State) {
	names := make([]string, len(fsm.States))
	for i, s := range fsm.States {
		names[i] = string(s)
	}
	e.metrics.State(string(state), names)
}

// Run opens the controller link and routes lines until ctx is cancelled or
// the link fails. Cancellation returns nil. An open failure wraps
// serial.ErrRetriesExhausted and a read failure wraps ErrLinkLost.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.transition(fsm.EventStart); err != nil {
		return err
	}

	manager := serial.Manager{
		Opener:        e.opener,
		Logger:        e.logger,
		RetryInterval: e.retryInterval,
		OnAttempt:     func(int, error) { e.metrics.SerialOpenAttempt() },
	}
	link, err := manager.Open(ctx, serial.SettingsFromConfig(e.cfg.Serial))
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, serial.ErrRetriesExhausted) {
			_ = e.transition(fsm.EventCancel)
			return nil
		}
		_ = e.transition(fsm.EventConnectFailed)
		e.logger.Error("controller link unavailable", "port", e.cfg.Serial.Port, "error", err)
		return fmt.Errorf("open controller link: %w", err)
	}
	if err := e.transition(fsm.EventConnected); err != nil {
		_ = link.Close()
		return err
	}

	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = link.Close()
	}()

	readErr := e.readLoop(ctx, link)
	close(stop)
	<-watcherDone

	if ctx.Err() != nil {
		_ = e.transition(fsm.EventCancel)
		e.logger.Info("engine stopped", "lines", e.stats.lines.Load())
		return nil
	}

	_ = e.transition(fsm.EventLinkLost)
	e.logger.Error("controller link lost", "port", e.cfg.Serial.Port, "error", readErr)
	return fmt.Errorf("%w: %w", ErrLinkLost, readErr)
}

func (e *Engine) readLoop(ctx context.Context, link *serial.Link) error {
	for {
		line, err := link.ReadLine()
		if err != nil {
			return err
		}
		e.HandleLine(ctx, line)
	}
}

// Handle serves IPC commands for a running engine.
func (e *Engine) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		stats := e.Stats()
		return ipc.Response{
			OK:      true,
			State:   string(e.State()),
			Message: "status",
			RunID:   e.runID,
			Port:    e.cfg.Serial.Port,
			Counters: &ipc.Counters{
				Lines:         stats.Lines,
				DecodeErrors:  stats.DecodeErrors,
				Unrouted:      stats.Unrouted,
				Applied:       stats.Applied,
				ApplyErrors:   stats.ApplyErrors,
				Resolutions:   stats.Resolutions,
				Invalidations: stats.Invalidations,
			},
		}
	case ipc.CommandMappings:
		return ipc.Response{OK: true, State: string(e.State()), Message: "mappings", Mappings: e.table.Snapshot()}
	case ipc.CommandRefresh:
		if err := e.table.RefreshAll(ctx); err != nil {
			return ipc.Response{OK: false, State: string(e.State()), Error: err.Error(), Mappings: e.table.Snapshot()}
		}
		return ipc.Response{OK: true, State: string(e.State()), Message: "refreshed", Mappings: e.table.Snapshot()}
	default:
		return ipc.Response{OK: false, State: string(e.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

package engine

import (
	"context"
	"strings"

	"github.com/rbright/volmixer/internal/audio"
	"github.com/rbright/volmixer/internal/config"
	"github.com/rbright/volmixer/internal/events"
	"github.com/rbright/volmixer/internal/mapping"
	"github.com/rbright/volmixer/internal/metrics"
	"github.com/rbright/volmixer/internal/protocol"
)

// HandleLine routes one framed serial line. Every failure is logged and
// counted; none escapes.
func (e *Engine) HandleLine(ctx context.Context, line string) {
	e.stats.lines.Add(1)
	e.metrics.SerialLine()

	if strings.TrimSpace(line) == "" {
		return
	}

	msg, err := protocol.Decode(line)
	if err != nil {
		e.stats.decodeErrors.Add(1)
		e.metrics.DecodeError()
		e.logger.Warn("discarding serial line", "line", line, "error", err)
		return
	}

	pin := config.PinKey(msg.Channel)
	app, ok := e.cfg.Application(pin)
	if !ok {
		e.unrouted(metrics.ReasonUnknownPin)
		e.logger.Error("no mapping configured for pin", "pin", pin, "line", line)
		return
	}
	if strings.TrimSpace(app) == "" {
		e.unrouted(metrics.ReasonEmptyPin)
		e.logger.Warn("pin has no application", "pin", pin)
		return
	}

	pids, ok := e.livePIDs(ctx, pin, app)
	if !ok {
		return
	}

	level := msg.Level()
	if e.cfg.Audio.ClampVolume {
		level = audio.Clamp(level)
	}
	e.apply(ctx, pin, app, pids, level)
}

// livePIDs returns the application's processes, re-resolving once when any
// cached pid has exited.
func (e *Engine) livePIDs(ctx context.Context, pin, app string) (mapping.ProcessSet, bool) {
	set, err := e.table.GetOrResolve(ctx, app)
	if err != nil {
		e.unrouted(metrics.ReasonResolve)
		e.logger.Warn("resolve application failed", "pin", pin, "application", app, "error", err)
		return nil, false
	}

	if e.hasDeadPID(ctx, set) {
		e.stats.invalidations.Add(1)
		set, err = e.table.InvalidateAndResolve(ctx, app)
		if err != nil {
			e.unrouted(metrics.ReasonResolve)
			e.logger.Warn("re-resolve application failed", "pin", pin, "application", app, "error", err)
			return nil, false
		}
	}

	if len(set) == 0 {
		e.unrouted(metrics.ReasonNoProcesses)
		e.logger.Warn("no running processes for application", "pin", pin, "application", app)
		return nil, false
	}
	return set, true
}

func (e *Engine) hasDeadPID(ctx context.Context, set mapping.ProcessSet) bool {
	for _, pid := range set.PIDs() {
		alive, err := e.processes.Exists(ctx, pid)
		if err != nil {
			e.logger.Warn("process liveness check failed", "pid", pid, "error", err)
			continue
		}
		if !alive {
			e.logger.Info("cached process exited", "pid", pid)
			return true
		}
	}
	return false
}

// apply sets level on every session of every pid. One pid failing does not
// stop its siblings.
func (e *Engine) apply(ctx context.Context, pin, app string, set mapping.ProcessSet, level float32) {
	sessions, err := e.provider.ListSessions(ctx, e.cfg.Audio.Device)
	if err != nil {
		e.stats.applyErrors.Add(uint64(len(set)))
		for range set {
			e.metrics.VolumeApplyError()
		}
		e.logger.Warn("list audio sessions failed", "device", e.cfg.Audio.Device, "application", app, "error", err)
		return
	}

	byPID := make(map[int][]audio.Session, len(sessions))
	for _, s := range sessions {
		byPID[s.PID] = append(byPID[s.PID], s)
	}

	for _, pid := range set.PIDs() {
		owned := byPID[pid]
		if len(owned) == 0 {
			e.stats.applyErrors.Add(1)
			e.metrics.VolumeApplyError()
			e.logger.Warn("process has no audio session", "pin", pin, "application", app, "pid", pid)
			continue
		}

		for _, s := range owned {
			if err := e.provider.SetVolume(ctx, s, level); err != nil {
				e.stats.applyErrors.Add(1)
				e.metrics.VolumeApplyError()
				e.logger.Warn("set volume failed", "pin", pin, "application", app, "pid", pid, "error", err)
				continue
			}
			e.stats.applied.Add(1)
			e.metrics.VolumeApplied()
			e.events.Publish(events.VolumeEvent{Pin: pin, Application: app, PID: pid, Volume: level})
			e.logger.Debug("volume applied", "pin", pin, "application", app, "pid", pid, "volume", level)
		}
	}
}

func (e *Engine) unrouted(reason string) {
	e.stats.unrouted.Add(1)
	e.metrics.Unrouted(reason)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rbright/volmixer/internal/audio"
	"github.com/rbright/volmixer/internal/cli"
	"github.com/rbright/volmixer/internal/config"
	"github.com/rbright/volmixer/internal/doctor"
	"github.com/rbright/volmixer/internal/engine"
	"github.com/rbright/volmixer/internal/events"
	"github.com/rbright/volmixer/internal/ipc"
	"github.com/rbright/volmixer/internal/logging"
	"github.com/rbright/volmixer/internal/metrics"
	"github.com/rbright/volmixer/internal/proc"
	"github.com/rbright/volmixer/internal/serial"
	"github.com/rbright/volmixer/internal/version"
)

const (
	probeTimeout   = 180 * time.Millisecond
	acquireRetries = 8
)

// Runner executes one CLI invocation. Zero-valued collaborators fall back to
// the platform implementations.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Provider      audio.Provider
	Opener        serial.Opener
	Processes     proc.Table
	RetryInterval time.Duration
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("volmixer"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("volmixer"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var mirror io.Writer
	if parsed.Verbose {
		mirror = r.Stderr
	}
	logRuntime, err := logging.New(logging.Options{Level: cfgLoaded.Config.Logging.Level, Mirror: mirror})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Source(),
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandMappings:
		return r.commandMappings(ctx)
	case cli.CommandRefresh:
		return r.commandRefresh(ctx)
	case cli.CommandSessions:
		return r.withProvider(func(p audio.Provider) int {
			return r.commandSessions(ctx, p, cfgLoaded.Config)
		})
	case cli.CommandDevices:
		return r.withProvider(func(p audio.Provider) int {
			return r.commandDevices(ctx, p)
		})
	case cli.CommandDoctor:
		return r.withProvider(func(p audio.Provider) int {
			report := doctor.Run(ctx, cfgLoaded, doctor.Deps{Provider: p, Processes: r.processes()})
			fmt.Fprintln(r.Stdout, report.String())
			if report.OK() {
				return 0
			}
			return 1
		})
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// withProvider runs fn with the injected provider or a platform provider
// that is closed afterwards.
func (r Runner) withProvider(fn func(audio.Provider) int) int {
	provider, release := r.openProvider()
	defer release()
	return fn(provider)
}

// openProvider returns the audio provider and the func that releases it.
// Injected providers are owned by the caller and never released here.
func (r Runner) openProvider() (audio.Provider, func()) {
	if r.Provider != nil {
		return r.Provider, func() {}
	}
	provider := audio.NewSystemProvider()
	return provider, func() { _ = provider.Close() }
}

func (r Runner) processes() proc.Table {
	if r.Processes != nil {
		return r.Processes
	}
	return proc.SystemTable{}
}

func (r Runner) opener() serial.Opener {
	if r.Opener != nil {
		return r.Opener
	}
	return serial.TarmOpener{}
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if _, err := config.Validate(cfg); err != nil {
		fmt.Fprintf(r.Stderr, "error: invalid config: %v\n", err)
		return 1
	}

	socketPath := ipc.RuntimeSocketPath()
	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: probeTimeout,
		Retries:      acquireRetries,
		Logger:       logger,
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v (socket %s)\n", err, socketPath)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	provider, release := r.openProvider()
	code, detached := r.serve(ctx, cfg, logger, provider, listener)
	if !detached {
		release()
	}
	return code
}

// serve runs the engine until it stops or ctx ends. detached reports an
// engine that outlived the grace period; its collaborators stay open.
func (r Runner) serve(ctx context.Context, cfg config.Config, logger *slog.Logger, provider audio.Provider, listener net.Listener) (code int, detached bool) {
	publisher := r.publisher(cfg, logger)
	defer func() {
		if !detached {
			publisher.Close()
		}
	}()

	m := metrics.New()
	eng, err := engine.New(ctx, engine.Options{
		Config:        cfg,
		Opener:        r.opener(),
		Provider:      provider,
		Processes:     r.processes(),
		Metrics:       m,
		Events:        publisher,
		Logger:        logger,
		RetryInterval: r.RetryInterval,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, false
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()

	serverErrCh := make(chan error, 1)
	go func() {
		server := ipc.Server{Handler: eng, Logger: logger.With("component", "ipc")}
		serverErrCh <- server.Serve(serverCtx, listener)
	}()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(serverCtx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("metrics listener failed", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	engineErrCh := make(chan error, 1)
	go func() {
		engineErrCh <- eng.Run(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-engineErrCh:
	case <-ctx.Done():
		logger.Info("shutdown requested", "grace_ms", cfg.Runtime.ShutdownGraceMS)
		cancelRun()
		grace := time.NewTimer(time.Duration(cfg.Runtime.ShutdownGraceMS) * time.Millisecond)
		select {
		case runErr = <-engineErrCh:
			grace.Stop()
		case <-grace.C:
			logger.Warn("engine did not stop within grace period", "grace_ms", cfg.Runtime.ShutdownGraceMS)
			detached = true
			runErr = fmt.Errorf("engine did not stop within %dms grace period", cfg.Runtime.ShutdownGraceMS)
		}
	}

	cancelServer()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1, detached
	}

	stats := eng.Stats()
	logger.Info("run finished",
		"run_id", eng.RunID(),
		"state", string(eng.State()),
		"lines", stats.Lines,
		"applied", stats.Applied,
		"apply_errors", stats.ApplyErrors,
		"unrouted", stats.Unrouted,
	)

	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1, detached
	}
	return 0, false
}

// publisher dials MQTT when configured. A broker that cannot be reached
// disables publishing for this run.
func (r Runner) publisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if cfg.MQTT.Broker == "" {
		return events.Nop{}
	}
	p, err := events.DialMQTT(cfg.MQTT, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: mqtt disabled: %v\n", err)
		logger.Warn("mqtt publisher unavailable", "broker", cfg.MQTT.Broker, "error", err)
		return events.Nop{}
	}
	return p
}

func (r Runner) commandStatus(ctx context.Context) int {
	resp, err := r.client().Do(ctx, ipc.CommandStatus)
	if errors.Is(err, ipc.ErrNoInstance) {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if resp.State == "" {
		resp.State = "stopped"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	if resp.RunID != "" || resp.Port != "" {
		fmt.Fprintf(r.Stdout, "run_id=%s port=%s\n", resp.RunID, resp.Port)
	}
	if c := resp.Counters; c != nil {
		fmt.Fprintf(r.Stdout,
			"lines=%d decode_errors=%d unrouted=%d applied=%d apply_errors=%d resolutions=%d invalidations=%d\n",
			c.Lines, c.DecodeErrors, c.Unrouted, c.Applied, c.ApplyErrors, c.Resolutions, c.Invalidations,
		)
	}
	return 0
}

func (r Runner) commandMappings(ctx context.Context) int {
	resp, code := r.forwardOrFail(ctx, ipc.CommandMappings)
	if code != 0 {
		return code
	}
	r.printMappings(resp.Mappings)
	return 0
}

func (r Runner) commandRefresh(ctx context.Context) int {
	resp, code := r.forwardOrFail(ctx, ipc.CommandRefresh)
	if code != 0 {
		return code
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	r.printMappings(resp.Mappings)
	return 0
}

func (r Runner) printMappings(mappings map[string][]int) {
	apps := make([]string, 0, len(mappings))
	for app := range mappings {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	for _, app := range apps {
		pids := mappings[app]
		if len(pids) == 0 {
			fmt.Fprintf(r.Stdout, "%s: (none)\n", app)
			continue
		}
		parts := make([]string, len(pids))
		for i, pid := range pids {
			parts[i] = fmt.Sprint(pid)
		}
		fmt.Fprintf(r.Stdout, "%s: %s\n", app, strings.Join(parts, " "))
	}
}

func (r Runner) client() ipc.Client {
	return ipc.Client{Path: ipc.RuntimeSocketPath()}
}

func (r Runner) forwardOrFail(ctx context.Context, command string) (ipc.Response, int) {
	resp, err := r.client().Do(ctx, command)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, 1
	}
	return resp, 0
}

func (r Runner) commandSessions(ctx context.Context, provider audio.Provider, cfg config.Config) int {
	device := cfg.Audio.Device
	if strings.TrimSpace(device) == "" {
		device = audio.DefaultDevice
	}

	sessions, err := provider.ListSessions(ctx, device)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintf(r.Stdout, "no audio sessions on %q\n", device)
		return 0
	}

	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].PID < sessions[j].PID })
	processes := r.processes()
	for _, s := range sessions {
		name, err := processes.Name(ctx, s.PID)
		if err != nil {
			name = s.Name
		}
		fmt.Fprintf(r.Stdout, "pid=%d | process=%q | volume=%.2f | session=%q\n", s.PID, name, s.Volume, s.Name)
	}
	return 0
}

func (r Runner) commandDevices(ctx context.Context, provider audio.Provider) int {
	devices, err := provider.Devices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s id=%s | description=%q\n", defaultMark, device.ID, device.Description)
	}
	return 0
}

// Package doctor runs readiness diagnostics for config, the controller port, audio, and outputs.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rbright/volmixer/internal/audio"
	"github.com/rbright/volmixer/internal/config"
	"github.com/rbright/volmixer/internal/mapping"
	"github.com/rbright/volmixer/internal/proc"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Warn    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass. Warnings do not fail the report.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		switch {
		case !check.Pass:
			status = "FAIL"
		case check.Warn:
			status = "WARN"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Deps are the live collaborators doctor probes.
type Deps struct {
	Provider  audio.Provider
	Processes proc.Table
}

// Run executes config, port, audio, and output checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, deps Deps) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkSerialPort(cfg.Serial.Port))

	device := checkDevice(ctx, deps.Provider, cfg.Audio.Device)
	checks = append(checks, device)
	if device.Pass {
		checks = append(checks, checkApplications(ctx, cfg, deps)...)
	}

	checks = append(checks, checkMetricsListen(cfg.Metrics.Listen))
	checks = append(checks, checkMQTTBroker(ctx, cfg.MQTT))

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if _, err := config.Validate(loaded.Config); err != nil {
		return Check{Name: "config", Pass: false, Message: fmt.Sprintf("%q: %v", loaded.Path, err)}
	}
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Warn: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	return Check{Name: "config", Pass: true, Message: "loaded " + loaded.Source()}
}

// checkSerialPort validates that the controller device node exists.
// COM names are not filesystem paths and are only checked for presence.
func checkSerialPort(port string) Check {
	port = strings.TrimSpace(port)
	if port == "" {
		return Check{Name: "serial.port", Pass: false, Message: "port is empty"}
	}
	if runtime.GOOS == "windows" {
		return Check{Name: "serial.port", Pass: true, Message: fmt.Sprintf("%s configured (not probed on windows)", port)}
	}

	info, err := os.Stat(port)
	if err != nil {
		return Check{Name: "serial.port", Pass: false, Message: fmt.Sprintf("%s: %v", port, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Check{Name: "serial.port", Pass: true, Warn: true, Message: fmt.Sprintf("%s exists but is not a character device", port)}
	}
	return Check{Name: "serial.port", Pass: true, Message: fmt.Sprintf("%s present", port)}
}

func checkDevice(ctx context.Context, provider audio.Provider, name string) Check {
	if strings.TrimSpace(name) == "" {
		return Check{Name: "audio.device", Pass: false, Message: "audio.device is empty"}
	}
	if provider == nil {
		return Check{Name: "audio.device", Pass: false, Message: "no audio provider available"}
	}

	devices, err := provider.Devices(ctx)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	device, ok := audio.FindDevice(devices, name)
	if !ok {
		return Check{Name: "audio.device", Pass: false, Message: fmt.Sprintf("%q not found among %d devices", name, len(devices))}
	}
	return Check{Name: "audio.device", Pass: true, Message: fmt.Sprintf("selected %q (%s)", device.ID, device.Description)}
}

// checkApplications resolves every mapped application. Missing sessions only
// warn: the application may simply not be playing yet.
func checkApplications(ctx context.Context, cfg config.Config, deps Deps) []Check {
	if deps.Processes == nil {
		return nil
	}
	resolver := mapping.Resolver{Provider: deps.Provider, Processes: deps.Processes, Device: cfg.Audio.Device}

	checks := make([]Check, 0, len(cfg.Applications()))
	for _, app := range cfg.Applications() {
		name := "app " + app
		set, err := resolver.Resolve(ctx, app)
		switch {
		case err != nil:
			checks = append(checks, Check{Name: name, Pass: true, Warn: true, Message: err.Error()})
		case len(set) == 0:
			checks = append(checks, Check{Name: name, Pass: true, Warn: true, Message: "no audio session right now"})
		default:
			checks = append(checks, Check{Name: name, Pass: true, Message: fmt.Sprintf("pids %v", set.PIDs())})
		}
	}
	return checks
}

// checkMetricsListen verifies the metrics address can be bound.
func checkMetricsListen(listen string) Check {
	if listen == "" {
		return Check{Name: "metrics.listen", Pass: true, Message: "disabled"}
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return Check{Name: "metrics.listen", Pass: false, Message: fmt.Sprintf("cannot bind %s: %v", listen, err)}
	}
	_ = ln.Close()
	return Check{Name: "metrics.listen", Pass: true, Message: fmt.Sprintf("%s available", listen)}
}

// checkMQTTBroker dials the broker's TCP address.
func checkMQTTBroker(ctx context.Context, cfg config.MQTTConfig) Check {
	if cfg.Broker == "" {
		return Check{Name: "mqtt.broker", Pass: true, Message: "disabled"}
	}
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Host == "" {
		return Check{Name: "mqtt.broker", Pass: false, Message: fmt.Sprintf("invalid broker URL %q", cfg.Broker)}
	}

	dialer := net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return Check{Name: "mqtt.broker", Pass: false, Message: fmt.Sprintf("dial %s: %v", u.Host, err)}
	}
	_ = conn.Close()
	return Check{Name: "mqtt.broker", Pass: true, Message: fmt.Sprintf("reachable at %s (topic %s)", u.Host, cfg.Topic)}
}

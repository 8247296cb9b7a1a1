package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Serial.Port) == "" {
		return nil, fmt.Errorf("serial.port must not be empty")
	}
	if cfg.Serial.BaudRate <= 0 {
		return nil, fmt.Errorf("serial.baud_rate must be > 0")
	}
	if cfg.Serial.MaxRetries < 0 {
		return nil, fmt.Errorf("serial.max_retries must be >= 0")
	}
	if cfg.Serial.MaxRetries == 0 {
		warnings = append(warnings, Warning{Message: "serial.max_retries=0 disables opening the port; run will fail immediately"})
	}
	// A blocking read cannot be interrupted by closing the port.
	if cfg.Serial.ReadTimeoutMS <= 0 {
		return nil, fmt.Errorf("serial.read_timeout_ms must be > 0")
	}
	if strings.TrimSpace(cfg.Audio.Device) == "" {
		return nil, fmt.Errorf("audio.device must not be empty")
	}
	if cfg.Runtime.ShutdownGraceMS <= 0 {
		return nil, fmt.Errorf("runtime.shutdown_grace_ms must be > 0")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	for key := range cfg.Pins {
		channel, ok := strings.CutPrefix(key, PinPrefix)
		if !ok || channel == "" {
			return nil, fmt.Errorf("pins key %q must look like %s<channel>", key, PinPrefix)
		}
		if strings.Contains(channel, ":") {
			return nil, fmt.Errorf("pins key %q must not contain ':'", key)
		}
	}
	for _, key := range cfg.UnassignedPins() {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("pin %q has no application assigned; messages for it will be skipped", key)})
	}
	if len(cfg.Applications()) == 0 {
		warnings = append(warnings, Warning{Message: "no pins map to an application; every message will be skipped"})
	}

	if addr := cfg.Metrics.Listen; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("metrics.listen %q must be host:port: %v", addr, err)
		}
	}

	if broker := cfg.MQTT.Broker; broker != "" {
		u, err := url.Parse(broker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("mqtt.broker %q must be a URL like tcp://host:1883", broker)
		}
		if strings.TrimSpace(cfg.MQTT.Topic) == "" {
			return nil, fmt.Errorf("mqtt.topic must not be empty when mqtt.broker is set")
		}
	}

	return warnings, nil
}

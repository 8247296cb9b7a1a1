// Package config resolves, parses, validates, and defaults volmixer configuration.
package config

// Config is the fully materialized runtime configuration used by volmixer.
//
// A Config is treated as immutable once Load returns it; Pins must not be
// mutated by consumers.
type Config struct {
	Serial  SerialConfig
	Audio   AudioConfig
	Pins    map[string]string
	Logging LoggingConfig
	Metrics MetricsConfig
	MQTT    MQTTConfig
	Runtime RuntimeConfig
}

// SerialConfig describes the controller's serial port and open policy.
type SerialConfig struct {
	Port          string
	BaudRate      int
	MaxRetries    int
	ReadTimeoutMS int
}

// AudioConfig selects the output device whose sessions are controlled.
type AudioConfig struct {
	Device      string
	ClampVolume bool
}

// LoggingConfig controls the JSONL log level.
type LoggingConfig struct {
	Level string
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Listen string
}

// MQTTConfig controls optional publishing of applied volume changes.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// RuntimeConfig controls host lifecycle behavior.
type RuntimeConfig struct {
	ShutdownGraceMS int
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

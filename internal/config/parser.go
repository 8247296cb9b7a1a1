package config

import (
	"fmt"
	"strings"
)

// fileConfig is the on-disk schema shared by the JSONC and YAML formats.
// Pointer fields distinguish "absent" from zero values so defaults survive.
type fileConfig struct {
	Serial  *fileSerial       `json:"serial" yaml:"serial"`
	Audio   *fileAudio        `json:"audio" yaml:"audio"`
	Pins    map[string]string `json:"pins" yaml:"pins"`
	Logging *fileLogging      `json:"logging" yaml:"logging"`
	Metrics *fileMetrics      `json:"metrics" yaml:"metrics"`
	MQTT    *fileMQTT         `json:"mqtt" yaml:"mqtt"`
	Runtime *fileRuntime      `json:"runtime" yaml:"runtime"`
}

type fileSerial struct {
	Port          *string `json:"port" yaml:"port"`
	BaudRate      *int    `json:"baud_rate" yaml:"baud_rate"`
	MaxRetries    *int    `json:"max_retries" yaml:"max_retries"`
	ReadTimeoutMS *int    `json:"read_timeout_ms" yaml:"read_timeout_ms"`
}

type fileAudio struct {
	Device      *string `json:"device" yaml:"device"`
	ClampVolume *bool   `json:"clamp_volume" yaml:"clamp_volume"`
}

type fileLogging struct {
	Level *string `json:"level" yaml:"level"`
}

type fileMetrics struct {
	Listen *string `json:"listen" yaml:"listen"`
}

type fileMQTT struct {
	Broker   *string `json:"broker" yaml:"broker"`
	Topic    *string `json:"topic" yaml:"topic"`
	ClientID *string `json:"client_id" yaml:"client_id"`
}

type fileRuntime struct {
	ShutdownGraceMS *int `json:"shutdown_grace_ms" yaml:"shutdown_grace_ms"`
}

// Format names a config file syntax.
type Format string

const (
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

// DetectFormat selects JSONC when the first character after whitespace and
// leading // or /* */ comments is `{`; anything else is YAML.
func DetectFormat(content string) Format {
	rest := strings.TrimSpace(content)
	for {
		switch {
		case strings.HasPrefix(rest, "//"):
			_, after, found := strings.Cut(rest, "\n")
			if !found {
				return FormatYAML
			}
			rest = strings.TrimSpace(after)
		case strings.HasPrefix(rest, "/*"):
			_, after, found := strings.Cut(rest[2:], "*/")
			if !found {
				return FormatYAML
			}
			rest = strings.TrimSpace(after)
		case strings.HasPrefix(rest, "{"):
			return FormatJSONC
		default:
			return FormatYAML
		}
	}
}

// Parse reads configuration content as JSONC or YAML per DetectFormat.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	var (
		payload fileConfig
		err     error
	)
	if DetectFormat(content) == FormatJSONC {
		payload, err = decodeJSONC(content)
	} else {
		payload, err = decodeYAML(content)
	}
	if err != nil {
		return Config{}, nil, err
	}

	cfg := base
	cfg.Pins = clonePins(base.Pins)
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload fileConfig) applyTo(cfg *Config) {
	if s := payload.Serial; s != nil {
		if s.Port != nil {
			cfg.Serial.Port = strings.TrimSpace(*s.Port)
		}
		if s.BaudRate != nil {
			cfg.Serial.BaudRate = *s.BaudRate
		}
		if s.MaxRetries != nil {
			cfg.Serial.MaxRetries = *s.MaxRetries
		}
		if s.ReadTimeoutMS != nil {
			cfg.Serial.ReadTimeoutMS = *s.ReadTimeoutMS
		}
	}

	if a := payload.Audio; a != nil {
		// Device names must match the platform display name byte for byte.
		if a.Device != nil {
			cfg.Audio.Device = *a.Device
		}
		if a.ClampVolume != nil {
			cfg.Audio.ClampVolume = *a.ClampVolume
		}
	}

	if payload.Pins != nil {
		cfg.Pins = clonePins(payload.Pins)
	}

	if l := payload.Logging; l != nil && l.Level != nil {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*l.Level))
	}

	if m := payload.Metrics; m != nil && m.Listen != nil {
		cfg.Metrics.Listen = strings.TrimSpace(*m.Listen)
	}

	if q := payload.MQTT; q != nil {
		if q.Broker != nil {
			cfg.MQTT.Broker = strings.TrimSpace(*q.Broker)
		}
		if q.Topic != nil {
			cfg.MQTT.Topic = strings.TrimSpace(*q.Topic)
		}
		if q.ClientID != nil {
			cfg.MQTT.ClientID = strings.TrimSpace(*q.ClientID)
		}
	}

	if r := payload.Runtime; r != nil && r.ShutdownGraceMS != nil {
		cfg.Runtime.ShutdownGraceMS = *r.ShutdownGraceMS
	}
}

func formatError(format string, err error) error {
	return fmt.Errorf("%s: %w", format, err)
}

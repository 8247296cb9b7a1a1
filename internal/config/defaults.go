package config

import "runtime"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	port := "/dev/ttyUSB0"
	if runtime.GOOS == "windows" {
		port = "COM3"
	}

	return Config{
		Serial: SerialConfig{
			Port:          port,
			BaudRate:      9600,
			MaxRetries:    10,
			ReadTimeoutMS: 250,
		},
		Audio:   AudioConfig{},
		Pins:    map[string]string{},
		Logging: LoggingConfig{Level: "info"},
		MQTT: MQTTConfig{
			Topic:    "volmixer/volume",
			ClientID: "volmixer",
		},
		Runtime: RuntimeConfig{ShutdownGraceMS: 2000},
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// configFileNames are probed in order inside the config directory.
var configFileNames = []string{"config.jsonc", "config.yaml", "config.yml"}

// ResolvePath applies CLI/XDG/home fallback rules for the config location.
//
// Without an explicit path the first existing file from configFileNames is
// used; when none exists the JSONC name is returned so the caller can report it.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}

	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return filepath.Join(dir, configFileNames[0]), nil
}

func configDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "volmixer"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "volmixer"), nil
}

package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is a parsed config plus where it came from.
type Loaded struct {
	Path     string
	Format   Format
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Source describes the config origin for logs and diagnostics.
func (l Loaded) Source() string {
	if !l.Exists {
		return l.Path + " (defaults)"
	}
	return l.Path + " (" + string(l.Format) + ")"
}

// Load resolves, reads, and parses the runtime configuration.
//
// A missing file yields Default() plus a warning; the defaults are not
// validated here because they intentionally leave audio.device unset.
// Commands that need a runnable config call Validate themselves.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	format := DetectFormat(string(content))
	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse %s config %q: %w", format, resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Format:   format,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

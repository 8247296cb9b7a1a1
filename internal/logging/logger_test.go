package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLogPathUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdgStateHome, "volmixer", "log.jsonl"), path)
}

func TestResolveLogPathFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "volmixer", "log.jsonl"), path)
}

func TestNewCreatesWritableJSONLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(Options{Level: "info"})
	require.NoError(t, err)

	runtime.Logger.Info("unit-test-log", "component", "logging")
	runtime.Logger.Debug("filtered-debug-log")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)
	require.NotContains(t, string(contents), "filtered-debug-log")

	stat, err := os.Stat(runtime.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewMirrorsToWriter(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	var mirror bytes.Buffer
	runtime, err := New(Options{Level: "debug", Mirror: &mirror})
	require.NoError(t, err)

	runtime.Logger.With("component", "engine").Debug("mirrored", "pin", "Pin_1")
	require.NoError(t, runtime.Close())

	require.Contains(t, mirror.String(), "msg=mirrored")
	require.Contains(t, mirror.String(), "component=engine")
	require.Contains(t, mirror.String(), "pin=Pin_1")

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"mirrored"`)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)

	level, err = ParseLevel("warn")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("chatty")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid log level")
}

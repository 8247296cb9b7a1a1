package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringIncludesBuildMetadata(t *testing.T) {
	originalVersion := Version
	originalCommit := Commit
	originalDate := Date
	t.Cleanup(func() {
		Version = originalVersion
		Commit = originalCommit
		Date = originalDate
	})

	Version = "1.2.3"
	Commit = "abc123"
	Date = "2026-02-18"

	got := String()
	require.Contains(t, got, "volmixer 1.2.3")
	require.Contains(t, got, "commit=abc123")
	require.Contains(t, got, "date=2026-02-18")
	require.Contains(t, got, "go=")
	require.Contains(t, got, "os=")
}

func TestResolveFallsBackToBuildInfo(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
		},
	}

	v, commit, date := resolve("dev", "none", "unknown", info)
	require.Equal(t, "v0.4.0", v)
	require.Equal(t, "0123456789ab", commit)
	require.Equal(t, "2026-03-01T10:00:00Z", date)
}

func TestResolvePrefersLinkerValues(t *testing.T) {
	info := &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
	}

	v, commit, date := resolve("1.2.3", "abc123", "2026-02-18", info)
	require.Equal(t, "1.2.3", v)
	require.Equal(t, "abc123", commit)
	require.Equal(t, "2026-02-18", date)

	v, _, _ = resolve("dev", "none", "unknown", info)
	require.Equal(t, "dev", v)

	v, commit, date = resolve("dev", "none", "unknown", nil)
	require.Equal(t, []string{"dev", "none", "unknown"}, []string{v, commit, date})
}

package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/volmixer.yaml", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/volmixer.yaml", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     string
		wantCmd     Command
		wantHelp    bool
		wantPath    string
		wantVerbose bool
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CommandVersion,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "needs an argument",
		},
		{
			name:    "empty config path",
			args:    []string{"--config=", "run"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"toggle"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:        "verbose run",
			args:        []string{"-v", "run"},
			wantCmd:     CommandRun,
			wantVerbose: true,
		},
		{
			name:     "equals form config",
			args:     []string{"--config=/tmp/cfg", "refresh"},
			wantCmd:  CommandRefresh,
			wantPath: "/tmp/cfg",
		},
		{
			name:     "valid sessions with config",
			args:     []string{"--config", "/tmp/cfg", "sessions"},
			wantCmd:  CommandSessions,
			wantPath: "/tmp/cfg",
		},
		{
			name:     "help command",
			args:     []string{"help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantVerbose, parsed.Verbose)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("volmixer")
	for _, cmd := range []string{"run", "status", "mappings", "refresh", "sessions", "devices", "doctor", "--config PATH", "--verbose"} {
		require.Contains(t, text, cmd)
	}
}

// Package cli parses volmixer's command line.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandRun      Command = "run"
	CommandStatus   Command = "status"
	CommandMappings Command = "mappings"
	CommandRefresh  Command = "refresh"
	CommandSessions Command = "sessions"
	CommandDevices  Command = "devices"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:      {},
	CommandStatus:   {},
	CommandMappings: {},
	CommandRefresh:  {},
	CommandSessions: {},
	CommandDevices:  {},
	CommandDoctor:   {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Verbose    bool
	ShowHelp   bool
}

// Parse reads global flags followed by exactly one command.
func Parse(args []string) (Parsed, error) {
	fs := pflag.NewFlagSet("volmixer", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)

	var (
		parsed      Parsed
		help        bool
		showVersion bool
	)
	fs.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	fs.BoolVarP(&parsed.Verbose, "verbose", "v", false, "mirror logs to stderr")
	fs.BoolVarP(&help, "help", "h", false, "show help")
	fs.BoolVar(&showVersion, "version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}
	if fs.Changed("config") && parsed.ConfigPath == "" {
		return Parsed{}, errors.New("--config requires a path")
	}

	switch {
	case help:
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		return parsed, nil
	case showVersion:
		parsed.Command = CommandVersion
		return parsed, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		return parsed, nil
	}

	cmd := Command(rest[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
	}
	if len(rest) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", rest[0])
	}

	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--verbose] <command>

Commands:
  run       Open the controller and route knob changes to application volume
  status    Print the running instance's state and counters
  mappings  Print application to process mappings of the running instance
  refresh   Re-resolve every mapped application in the running instance
  sessions  List audio sessions on the configured device
  devices   List available output devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/volmixer/config.jsonc)
  -v, --verbose   Mirror logs to stderr
  -h, --help      Show help
  --version       Show version
`, binaryName)
}

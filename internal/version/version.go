// Package version reports build metadata.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set at link time with -ldflags "-X". Unset values fall back to the
// module and VCS data recorded by the Go toolchain.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	info, _ := debug.ReadBuildInfo()
	v, commit, date := resolve(Version, Commit, Date, info)
	return "volmixer " + v + " (commit=" + commit + ", date=" + date + ", go=" + runtime.Version() + ", os=" + runtime.GOOS + ")"
}

func resolve(v, commit, date string, info *debug.BuildInfo) (string, string, string) {
	if info == nil {
		return v, commit, date
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "none" && s.Value != "" {
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && s.Value != "" {
				date = s.Value
			}
		}
	}
	return v, commit, date
}

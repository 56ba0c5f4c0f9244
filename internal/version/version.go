/*
Package version reports which skill-hub build is running.

Release builds stamp Version, Commit and Date with -ldflags, e.g.

	-X github.com/khanglvm/skill-hub/internal/version.Version=v1.2.0

A plain `go install` leaves them unset; Current then falls back to the
module version and VCS stamp the Go toolchain records in the binary.
*/
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Product is the name skill-hub announces in JSON-RPC handshakes.
const Product = "skill-hub"

// Set via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info describes one build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion"`
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Current returns the running build's info.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if Version != "dev" {
		return info
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" && len(s.Value) >= 10 {
				info.Date = s.Value[:10]
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String formats info for --version.
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	if i.Version == "dev" {
		if i.Commit == "none" {
			return "dev (development build)"
		}
		return fmt.Sprintf("dev (commit: %s)", commit)
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", i.Version, commit, i.Date)
}

// PeerInfo is the name/version object exchanged during initialize, both
// by the stdio server and with generator processes.
func PeerInfo() map[string]any {
	return map[string]any{
		"name":    Product,
		"version": Current().Version,
	}
}

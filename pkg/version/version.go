// Package version holds build metadata of the crashdice binary.
package version

import "runtime/debug"

// Set through -ldflags "-X" at release build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	vcsRevision = "vcs.revision"
	vcsTime     = "vcs.time"
	shortHash   = 12
)

// InitBinaryVersion fills the fields left at their defaults from the module
// build information embedded by the Go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case vcsRevision:
			if Commit == "none" && s.Value != "" {
				Commit = s.Value[:min(shortHash, len(s.Value))]
			}
		case vcsTime:
			if Date == "unknown" && s.Value != "" {
				Date = s.Value
			}
		}
	}
}

// String renders the version line printed by the CLI.
func String() string {
	return "crashdice " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}

// Package version reports how the indexmode binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Stamped with -ldflags "-X github.com/Aman-CERP/indexmode/pkg/version.Version=...".
// Commit and Date fall back to the VCS stamp of the main module when unset.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var (
	infoOnce sync.Once
	info     BuildInfo
)

// GetInfo returns the build information. It is resolved once per process.
func GetInfo() BuildInfo {
	infoOnce.Do(func() { info = resolve(debug.ReadBuildInfo) })
	return info
}

func resolve(read func() (*debug.BuildInfo, bool)) BuildInfo {
	bi := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	b, ok := read()
	if !ok || b == nil {
		return bi
	}
	for _, s := range b.Settings {
		switch s.Key {
		case "vcs.revision":
			if bi.Commit == "unknown" {
				bi.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if bi.Date == "unknown" {
				bi.Date = s.Value
			}
		case "vcs.modified":
			bi.Modified = s.Value == "true"
		}
	}
	return bi
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns a one-line description of the build.
func String() string {
	i := GetInfo()
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("indexmode %s (commit: %s, built: %s, go: %s, %s/%s)",
		i.Version, commit, i.Date, i.GoVersion, i.OS, i.Arch)
}

// Short returns just the version.
func Short() string {
	return Version
}

// Package version carries build metadata. The variables are set with
// -ldflags "-X"; commit and date fall back to the VCS stamp Go embeds.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set at link time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info is the build metadata reported by /api/version.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
	Modified  bool   `json:"modified,omitempty"`
}

var vcs = sync.OnceValue(func() (s struct {
	revision, time string
	modified       bool
}) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return s
	}
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.time":
			s.time = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		}
	}
	return s
})

// Get returns version and build information.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	stamp := vcs()
	if info.GitCommit == "unknown" && stamp.revision != "" {
		info.GitCommit = stamp.revision
		if len(info.GitCommit) > 12 {
			info.GitCommit = info.GitCommit[:12]
		}
		info.Modified = stamp.modified
	}
	if info.BuildDate == "unknown" && stamp.time != "" {
		info.BuildDate = stamp.time
	}
	return info
}

// String returns the application version string.
func String() string {
	return Version
}

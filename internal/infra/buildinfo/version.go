package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags -X. Empty values fall back to the VCS stamps the Go
// toolchain embeds in the binary.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info identifies the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var readVCS = sync.OnceValue(func() Info {
	var info Info
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.time":
			info.BuildTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
})

// Get merges the ldflags values over the embedded VCS stamps.
func Get() Info {
	info := readVCS()
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}
	info.Version = Version
	if Commit != "" {
		info.Commit, info.Modified = Commit, false
	}
	if BuildTime != "" {
		info.BuildTime = BuildTime
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

// String formats i for -version.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += "-dirty"
	}
	return i.Version + " (" + commit + ", " + i.GoVersion + ") built " + i.BuildTime
}

// LogArgs returns key/value pairs for the startup log line.
func (i Info) LogArgs() []any {
	return []any{"version", i.Version, "commit", i.Commit, "go_version", i.GoVersion}
}

// Labels returns the constant labels of the rtcr_build_info gauge.
func (i Info) Labels() map[string]string {
	return map[string]string{"version": i.Version, "commit": i.Commit, "go_version": i.GoVersion}
}

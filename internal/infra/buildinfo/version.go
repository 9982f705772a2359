package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Injected at release build time:
//
//	go build -ldflags "-X .../internal/infra/buildinfo.Version=v1.2.0 ..."
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get assembles the build description. Fields the linker did not set
// fall back to what the Go runtime embedded: the VCS revision for
// plain `go build` binaries, and the toolchain version always.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// String renders a one-line version banner.
func (i Info) String() string {
	commit := i.Commit
	if commit == "" {
		commit = "unknown"
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (%s) %s", i.Version, commit, i.GoVersion)
}

// String renders the banner for the current binary.
func String() string {
	return Get().String()
}

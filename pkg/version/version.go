// Package version reports the build version of the modshim binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set through -ldflags "-X github.com/Sumatoshi-tech/modshim/pkg/version.Version=..." at release time.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the build information printed by `modshim version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information. Commit and date fall back to the VCS
// stamp the Go toolchain embeds when they were not set at link time.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		}
	}

	return info
}

func (i Info) String() string {
	s := "modshim " + i.Version

	if i.Commit != "" {
		s += fmt.Sprintf(" (%s", shortCommit(i.Commit))
		if i.Date != "" {
			s += ", " + i.Date
		}

		s += ")"
	}

	return s + fmt.Sprintf(" %s %s", i.GoVersion, i.Platform)
}

func shortCommit(c string) string {
	const n = 12
	if len(c) > n {
		return c[:n]
	}

	return c
}

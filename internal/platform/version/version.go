// Package version exposes build information injected via ldflags:
//
//	-ldflags "-X github.com/pscheid92/agentpulse/internal/platform/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"
)

const Service = "agentpulse"

var (
	// Version is the git tag or semantic version
	Version = "dev"
	// Commit is the git commit SHA
	Commit = "unknown"
	// BuildTime is the ISO 8601 build timestamp
	BuildTime = "unknown"
)

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, built %s, %s)", i.Service, i.Version, i.Commit, i.BuildTime, i.GoVersion)
}

// Package buildinfo provides build-time properties injected via ldflags:
//
//	go build -ldflags "-X github.com/lexoliu/progressor/buildinfo.version=v0.3.0 \
//	  -X github.com/lexoliu/progressor/buildinfo.gitCommit=$(git rev-parse HEAD) \
//	  -X github.com/lexoliu/progressor/buildinfo.buildTime=$(date -u +%FT%TZ)"
package buildinfo

import "fmt"

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// String formats the properties for --version output.
func (p Properties) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", p.Version, p.GitCommit, p.BuildTime)
}

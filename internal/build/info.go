// Package build carries version metadata stamped at link time.
package build

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "embed"
)

// Name is the service name reported to metrics and logs.
const Name = "dochooks"

//go:embed VERSION
var rawVersion []byte

// Set with -ldflags "-X github.com/looplj/dochooks/internal/build.Commit=...".
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
	StartTime = time.Now()
)

//nolint:gochecknoinits // falls back to the embedded VERSION file.
func init() {
	if Version == "" {
		Version = strings.TrimSpace(string(rawVersion))
	}
}

type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Uptime    string `json:"uptime"`
}

func GetBuildInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:    time.Since(StartTime).Round(time.Second).String(),
	}
}

// UserAgent identifies the daemon to external stores, e.g. as the mongo appName.
func UserAgent() string {
	if Commit == "" {
		return Name + "/" + Version
	}

	return fmt.Sprintf("%s/%s (%s)", Name, Version, Commit)
}

func (i Info) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s\n", i.Name, i.Version)

	if i.Commit != "" {
		fmt.Fprintf(&sb, "Commit: %s\n", i.Commit)
	}

	if i.BuildTime != "" {
		fmt.Fprintf(&sb, "Built: %s\n", i.BuildTime)
	}

	fmt.Fprintf(&sb, "Go: %s\n", i.GoVersion)
	fmt.Fprintf(&sb, "Platform: %s\n", i.Platform)
	fmt.Fprintf(&sb, "Uptime: %s\n", i.Uptime)

	return sb.String()
}

package health

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set through -ldflags "-X github.com/saiset-co/sai-shop/health.buildVersion=..."
var (
	buildVersion = "dev"
	buildTime    = ""
)

type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	Modified  bool      `json:"modified"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
}

func readBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   buildVersion,
		GitCommit: "unknown",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if parsed, err := time.Parse(time.RFC3339, buildTime); err == nil {
		info.BuildTime = parsed
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.GitCommit = setting.Value
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildTime = parsed
				}
			}
		}
	}

	return info
}

func (b BuildInfo) String() string {
	commit := b.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s-%s (%s)", b.Version, commit, b.BuildTime.Format("2006-01-02"))
}

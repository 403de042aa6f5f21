// Package versions reports the build version of reposync.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const unknown = "unknown"

// Build information, set with -ldflags "-X github.com/stacklok/reposync/internal/versions.Version=..."
var (
	Version   = "dev"
	Commit    = unknown
	BuildDate = unknown
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary
func Get() Info {
	return resolve(Version, Commit, BuildDate, readVCS)
}

// readVCS returns the revision and commit time recorded by the Go toolchain
func readVCS() (revision, commitTime string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			commitTime = s.Value
		}
	}
	return revision, commitTime
}

func resolve(version, commit, buildDate string, vcs func() (string, string)) Info {
	if strings.HasPrefix(version, "dev") {
		revision, commitTime := vcs()
		if commit == unknown && revision != "" {
			commit = revision
		}
		if buildDate == unknown && commitTime != "" {
			buildDate = commitTime
		}
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	// untagged builds are named after their commit
	if version == "dev" {
		version = fmt.Sprintf("build-%.8s", commit)
	}

	return Info{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

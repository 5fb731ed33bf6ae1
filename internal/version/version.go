// Package version reports how the tagnest binary was built. Values come from
// -ldflags when set and fall back to the VCS stamps in debug.ReadBuildInfo.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	BuildUser string    `json:"build_user,omitempty" yaml:"build_user,omitempty"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
}

// Set at build time with
//
//	go build -ldflags "-X github.com/conneroisu/tagnest/internal/version.Version=v1.2.3"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	BuildUser = "unknown"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// GetBuildInfo returns comprehensive build information
func GetBuildInfo() *BuildInfo {
	user := BuildUser
	if user == "unknown" {
		user = ""
	}
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: GetBuildTime(),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		BuildUser: user,
		Dirty:     IsDirty(),
	}
}

// buildSetting returns a debug build setting such as vcs.revision.
func buildSetting(key string) (string, bool) {
	info, ok := readBuildInfo()
	if !ok {
		return "", false
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value, true
		}
	}
	return "", false
}

// GetVersion returns the application version
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := readBuildInfo(); ok && info.Main.Version != "(devel)" && info.Main.Version != "" {
		return info.Main.Version
	}

	if rev, ok := buildSetting("vcs.revision"); ok && len(rev) >= 7 {
		return "dev-" + rev[:7]
	}

	return "dev"
}

// GetGitCommit returns the git commit hash
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev, ok := buildSetting("vcs.revision"); ok && rev != "" {
		return rev
	}
	return "unknown"
}

// GetBuildTime returns the build time, falling back to the VCS commit time.
func GetBuildTime() time.Time {
	if t := parseISOTime(BuildTime); !t.IsZero() {
		return t
	}
	if stamp, ok := buildSetting("vcs.time"); ok {
		return parseISOTime(stamp)
	}
	return time.Time{}
}

// GetShortVersion returns a short version string suitable for display
func GetShortVersion() string {
	version := GetVersion()
	commit := GetGitCommit()

	if commit == "unknown" || len(commit) < 7 {
		return version
	}
	if strings.HasPrefix(version, "dev") {
		return "dev-" + commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, commit[:7])
}

// String renders the multi-line form printed by "tagnest version".
func (b *BuildInfo) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "tagnest %s", b.Version)
	if b.GitCommit != "unknown" && len(b.GitCommit) >= 7 {
		fmt.Fprintf(&sb, " (%s)", b.GitCommit[:7])
	}
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteByte('\n')

	if !b.BuildTime.IsZero() {
		fmt.Fprintf(&sb, "Built: %s\n", b.BuildTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintf(&sb, "Go: %s\n", b.GoVersion)
	fmt.Fprintf(&sb, "Platform: %s\n", b.Platform)
	if b.BuildUser != "" {
		fmt.Fprintf(&sb, "User: %s\n", b.BuildUser)
	}

	return sb.String()
}

// IsRelease returns true if this is a release build (not dev)
func IsRelease() bool {
	version := GetVersion()
	return version != "dev" && !strings.HasPrefix(version, "dev-")
}

// IsDirty returns true if the working directory was dirty when built
func IsDirty() bool {
	modified, _ := buildSetting("vcs.modified")
	return modified == "true"
}

// parseISOTime parses an ISO 8601 time string, returns zero time on error
func parseISOTime(timeStr string) time.Time {
	if timeStr == "" || timeStr == "unknown" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.000Z",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t
		}
	}

	return time.Time{}
}

package app

import (
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""

	readBuildInfo = debug.ReadBuildInfo
)

// BuildVersion prefers the ldflags version, then the module version `go install` recorded.
func BuildVersion() string {
	if v := strings.TrimSpace(Version); v != "" && v != "dev" {
		return v
	}
	if info, ok := readBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}

	return "dev"
}

// BuildDateYMD falls back to the VCS commit time when no build date was injected.
func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		raw = buildSetting("vcs.time")
	}
	if len(raw) >= len(time.DateOnly) {
		if d, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return d.Format(time.DateOnly)
		}
	}

	return raw
}

func buildSetting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}

	return ""
}

// FirmwareVersion is the version written into the global record.
func FirmwareVersion() string {
	return strings.TrimPrefix(BuildVersion(), "v")
}

// SameLayoutMajor reports whether records written by stored can be read by running.
// Versions that are not semver, such as dev builds, are treated as compatible.
func SameLayoutMajor(stored, running string) bool {
	s, r := canonicalSemver(stored), canonicalSemver(running)
	if s == "" || r == "" {
		return true
	}

	return semver.Major(s) == semver.Major(r)
}

func canonicalSemver(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "v") {
		raw = "v" + raw
	}
	if !semver.IsValid(raw) {
		return ""
	}

	return semver.Canonical(raw)
}

package version

import "time"

// Overridden at build time with -ldflags "-X .../internal/version.BuildTime=..."
var (
	Version   = "1.0.0"
	BuildTime = "development"
	GitHash   = ""
)

func GetVersionInfo() map[string]string {
	return map[string]string{
		"app":        "happy-on-slack",
		"version":    Version,
		"build_time": BuildTime,
		"git_hash":   GitHash,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
}

func GetVersion() string {
	return Version
}

func GetBuildInfo() string {
	if BuildTime == "development" {
		return Version + "-dev"
	}
	return Version + " (built " + BuildTime + ")"
}

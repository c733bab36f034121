package api

// Version information, set at build time via ldflags.
var (
	ServerVersion = "dev"
	GitCommit     = "unknown"
	BuildTime     = "unknown"
)

// GetVersionInfo returns the current version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		ServerVersion: ServerVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
	}
}

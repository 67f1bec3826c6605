// Package version holds build information for the agent.
package version

// Set via ldflags during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// UserAgent identifies the agent in outgoing probe requests
func UserAgent() string {
	return "Warren-Agent/" + Version
}

// Package version carries build information stamped in by the linker.
package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/vnetorch/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/vnetorch/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/vnetorch/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate
}

// Line is the version output of the named tool.
func Line(tool string) string {
	if Version == "dev" {
		return tool + " dev build"
	}
	return tool + " " + Info()
}

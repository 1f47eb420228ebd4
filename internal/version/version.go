// Package version carries build metadata injected with -ldflags, e.g.
// go build -ldflags "-X git.home.luguber.info/inful/tabbackup/internal/version.Version=v1.2.0".
package version

// Version is the release of this binary.
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return Version + " (commit " + GitCommit + ", built " + BuildTime + ")"
}

// UserAgent identifies this client to remote servers.
func UserAgent() string {
	return "tabbackup/" + Version
}

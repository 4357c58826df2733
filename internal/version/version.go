// Package version holds build information injected via -ldflags -X.
package version

// Set at build time, e.g.
// -ldflags "-X github.com/bissquit/incident-escalator/internal/version.Version=1.2.0".
var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build information reported by /version and `escalator version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
	}
}

// String formats the build information on one line.
func (i Info) String() string {
	return i.Version + " (commit " + i.Commit + ", built " + i.BuildDate + ")"
}

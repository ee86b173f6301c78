// pkg/version/version.go
// Package version holds build-time metadata for the gpgbridge binaries.
// Values are intended to be injected via -ldflags at compile time, e.g.:
//
//	go build -tags cli -ldflags "-X 'github.com/nimbusrelay/gpgbridge/pkg/version.version=v0.1.0' \
//	                      -X 'github.com/nimbusrelay/gpgbridge/pkg/version.commit=$(git rev-parse --short HEAD)' \
//	                      -X 'github.com/nimbusrelay/gpgbridge/pkg/version.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)'" ./cmd/gpgbridge
//
// The gpgbridge CLI reads it for its `version` sub-command and its startup
// log line; the standalone gpgbridge-host and gpgbridge-remote binaries do
// not import it.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// String returns a human-readable representation suitable for --version
// output and startup log lines.
func String() string {
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

// Components returns the individual fields, for callers building their own
// structured representation.
func Components() (ver, gitCommit, buildDate string) {
	return version, commit, date
}

// Map returns the build metadata as a string map, for JSON output or as
// extra fields on a startup log entry.
func Map() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}

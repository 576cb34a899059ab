// Package buildconfig carries release metadata stamped into the binary with
// -ldflags "-X github.com/botforge/botforge/internal/buildconfig.version=...".
// The health endpoint surfaces both fields.
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

// Version reports the stamped release version.
func Version() string {
	return version
}

// Commit reports the stamped git revision.
func Commit() string {
	return commit
}

// Package version carries build metadata injected with -ldflags -X.
package version

var (
	// Version is the release tag the binary was built from
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the metadata for -version and the debug page.
func String() string {
	return "platesort " + Version + " (" + GitSHA + ", built " + BuildTime + ")"
}

// Package version contains the symbolic version of iperfer.
package version

// Version is the symbolic version of the running code. Release builds
// override it with -ldflags "-X github.com/m-lab/iperfer/version.Version=...".
var Version = "v0.1.0"

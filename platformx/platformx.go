// Package platformx contains platform specific code
package platformx

// WarnIfNotFullySupported will emit a warning if the platform is not
// fully supported by iperfer. Kernel socket statistics, BBR and the
// listen backlog of one are only available on Linux.
func WarnIfNotFullySupported() {
	maybeEmitWarning()
}

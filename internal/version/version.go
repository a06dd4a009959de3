// Package version holds the build identity shared by the CLI and the
// public package surface.
package version

const (
	Version = "1.0.0"
	Author  = "Reflex Coder"
)

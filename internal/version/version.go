// Package version provides build and version information for the Bearcu story player.
package version

// Version is the current release version of the story player.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/mdrv/python-game/internal/version.Version=x.y.z"
var Version = "0.3.0"

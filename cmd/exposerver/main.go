// exposerver - command-line client for an exposerver file server.
// Uploads many files at once with one progress bar each, and browses
// what the server exposes.
package main

import (
	"os"

	"github.com/exposerver/exposerver/internal/cli"
	"github.com/exposerver/exposerver/internal/version"
)

// Set by ldflags: -X main.Version=... -X main.BuildTime=...
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

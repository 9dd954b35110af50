// credvend vends short-lived, path-scoped cloud storage credentials.
package main

import (
	"os"

	"github.com/rescale/credvend/internal/cli"
	"github.com/rescale/credvend/internal/version"
)

// Version information, injected by the Makefile via LDFLAGS
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

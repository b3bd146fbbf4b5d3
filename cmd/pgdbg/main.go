package main

import (
	"os"

	"github.com/pgdbg/pgdbg/cmd/pgdbg/cmds"
	"github.com/pgdbg/pgdbg/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.PgdbgVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}

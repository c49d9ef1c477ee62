// Command replaykit is the CLI front end for ReplayKit's capture,
// replay, diff, assert, bundle, snapshot-assert, and migrate
// operations (spec §6).
package main

import (
	"os"

	"github.com/replaykit/replaykit/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}

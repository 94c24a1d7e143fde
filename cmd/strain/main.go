package main

import (
	"github.com/moby/sys/reexec"

	"github.com/strainlabs/strain/internal/cli"
	"github.com/strainlabs/strain/internal/metrics"
	_ "github.com/strainlabs/strain/internal/worker"
)

func main() {
	// Worker and no-op child entries take over the process when the
	// binary is re-executed under their names.
	if reexec.Init() {
		return
	}
	metrics.EmitBuildInfo()
	cli.Execute()
}

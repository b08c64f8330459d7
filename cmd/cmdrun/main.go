package main

import (
	"github.com/Paintersrp/cmdrun/internal/cli"
	"github.com/Paintersrp/cmdrun/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}

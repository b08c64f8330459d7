package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cmdrun/internal/metrics"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, revision := metrics.BuildVersion()
			if revision != "" {
				version += " (" + revision + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cmdrun %s %s %s/%s\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cmdrun/internal/proc"
	"github.com/Paintersrp/cmdrun/internal/runner"
)

func newExecCmd(ctx *context) *cobra.Command {
	var (
		discard bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] command [args...]",
		Short: "Start a command and wait for it, mirroring its exit status",
		Long: "Start a command in its own process group and wait for it to exit. " +
			"Output is printed verbatim once the command finishes unless --discard-output is set.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, runErr := ctx.newRunner().RunCmd(cmd.Context(), args, runner.RunOptions{
				Timeout:       timeout,
				Raw:           true,
				DiscardOutput: discard,
			})
			ctx.flushMetrics()

			var spawnErr *proc.SpawnError
			if errors.As(runErr, &spawnErr) {
				return &ExitError{Code: exitSpawnFailed, Err: runErr}
			}
			if err := writeOutput(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if code := exitStatusFor(res); code != 0 || runErr != nil {
				if code == 0 {
					code = 1
				}
				return &ExitError{Code: code, Err: runErr}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&discard, "discard-output", false, "Send the command's stdout and stderr to the null device")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Kill the command tree after this duration (0 disables)")
	return cmd
}

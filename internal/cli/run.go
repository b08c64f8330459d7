package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cmdrun/internal/proc"
	"github.com/Paintersrp/cmdrun/internal/runner"
)

// Exit statuses used by the CLI itself, following coreutils timeout(1).
const (
	exitTimedOut    = 124
	exitSpawnFailed = 127
)

func newRunCmd(ctx *context) *cobra.Command {
	var (
		timeout        time.Duration
		input          string
		inputFile      string
		inputEncoding  string
		outputEncoding string
		raw            bool
		stripColors    bool
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] command [args...]",
		Short: "Run a command, capture its combined output and enforce a timeout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := ctx.config().Defaults
			opts := runner.RunOptions{
				Timeout:        defaults.Timeout.Duration,
				InputEncoding:  defaults.InputEncoding,
				OutputEncoding: defaults.OutputEncoding,
				Raw:            defaults.Raw,
				KeepColors:     !defaults.ShouldStripColors(),
			}

			flags := cmd.Flags()
			if flags.Changed("timeout") {
				opts.Timeout = timeout
			}
			if flags.Changed("input-encoding") {
				opts.InputEncoding = inputEncoding
			}
			if flags.Changed("output-encoding") {
				opts.OutputEncoding = outputEncoding
			}
			if flags.Changed("raw") {
				opts.Raw = raw
			}
			if flags.Changed("strip-colors") {
				opts.KeepColors = !stripColors
			}

			in, err := readInput(cmd, input, inputFile)
			if err != nil {
				return err
			}
			opts.Input = in

			res, runErr := ctx.newRunner().RunCmd(cmd.Context(), args, opts)
			ctx.flushMetrics()

			var spawnErr *proc.SpawnError
			if errors.As(runErr, &spawnErr) {
				return &ExitError{Code: exitSpawnFailed, Err: runErr}
			}
			if runErr != nil && res.Duration == 0 {
				// Rejected before anything ran, e.g. an unknown encoding.
				return runErr
			}

			if jsonOutput {
				EncodeResult(json.NewEncoder(cmd.OutOrStdout()), cmd.ErrOrStderr(), args, res)
			} else if err := writeOutput(cmd.OutOrStdout(), res); err != nil {
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

	flags := cmd.Flags()
	// Everything after the first argument belongs to the command being run.
	flags.SetInterspersed(false)
	flags.DurationVarP(&timeout, "timeout", "t", 0, "Kill the command tree after this duration (0 disables)")
	flags.StringVar(&input, "input", "", "Text fed to the command's standard input")
	flags.StringVar(&inputFile, "input-file", "", "File whose bytes are fed to standard input (- for stdin)")
	flags.StringVar(&inputEncoding, "input-encoding", "utf-8", "Encoding applied to --input text")
	flags.StringVar(&outputEncoding, "output-encoding", "utf-8", "Encoding used to decode captured output")
	flags.BoolVar(&raw, "raw", false, "Print captured bytes without decoding or normalization")
	flags.BoolVar(&stripColors, "strip-colors", true, "Remove terminal color sequences from decoded output")
	flags.BoolVar(&jsonOutput, "json", false, "Print a JSON record with output, return code and timeout flag")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")

	return cmd
}

func readInput(cmd *cobra.Command, text, file string) (runner.Input, error) {
	switch {
	case cmd.Flags().Changed("input"):
		return runner.Text(text), nil
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return runner.Input{}, fmt.Errorf("read stdin: %w", err)
		}
		return runner.Bytes(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return runner.Input{}, fmt.Errorf("read input file: %w", err)
		}
		return runner.Bytes(data), nil
	default:
		return runner.Input{}, nil
	}
}

func writeOutput(w io.Writer, res runner.Result) error {
	var err error
	if res.Decoded {
		_, err = io.WriteString(w, res.Text)
	} else {
		_, err = w.Write(res.Output)
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// exitStatusFor maps a result onto a shell exit status: 124 on timeout and
// 128+N for a command terminated by signal N.
func exitStatusFor(res runner.Result) int {
	switch {
	case res.TimedOut:
		return exitTimedOut
	case res.ReturnCode < 0:
		return 128 - res.ReturnCode
	default:
		return res.ReturnCode
	}
}

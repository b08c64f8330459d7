package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/cmdrun/internal/config"
	"github.com/Paintersrp/cmdrun/internal/logging"
	"github.com/Paintersrp/cmdrun/internal/metrics"
	"github.com/Paintersrp/cmdrun/internal/runner"
)

const defaultConfigFile = "cmdrun.yaml"

// ExitError carries the status the binary should exit with. Err is printed
// to stderr when set.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{}

	root := &cobra.Command{
		Use:   "cmdrun",
		Short: "Run external commands with timeouts and whole-tree termination",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load(cmd)
		},
	}

	root.PersistentFlags().
		StringVarP(&ctx.configFile, "config", "c", defaultConfigFile, "Path to configuration file")
	root.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "", "Log format (console or json)")
	root.PersistentFlags().StringVar(&ctx.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the command finishes")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newExecCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err != nil {
				fmt.Fprintln(os.Stderr, exitErr.Err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	configFile  string
	logLevel    string
	logFormat   string
	metricsFile string

	// guard overrides the process-wide guard; tests set it.
	guard *runner.Guard

	mu  sync.Mutex
	cfg *config.Config
	log zerolog.Logger
}

func (c *context) load(cmd *cobra.Command) error {
	required := cmd.Flags().Changed("config")
	cfg, err := config.LoadOrDefault(c.configFile, required)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Log.Validate(); err != nil {
		return err
	}
	if c.metricsFile != "" {
		cfg.Metrics.File = c.metricsFile
	}

	log := logging.New(cfg.Log, cmd.ErrOrStderr())

	c.mu.Lock()
	c.cfg = cfg
	c.log = log
	c.mu.Unlock()
	return nil
}

func (c *context) config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	return c.cfg
}

func (c *context) logger() zerolog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

func (c *context) newRunner() *runner.Runner {
	cfg := c.config()
	log := c.logger()
	guard := c.guard
	if guard == nil {
		guard = runner.Default()
	}
	guard.SetLogger(log)
	return runner.New(
		runner.WithGuard(guard),
		runner.WithLogger(log),
		runner.WithWaitDelay(cfg.Defaults.WaitDelay.Duration),
		runner.WithDir(cfg.Defaults.Dir),
		runner.WithEnv(cfg.Defaults.EnvList()),
	)
}

func (c *context) flushMetrics() {
	path := c.config().Metrics.File
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		log := c.logger()
		log.Error().Err(err).Str("path", path).Msg("write metrics textfile")
	}
}

// Package runner executes external commands synchronously, enforcing
// timeouts and returning their combined, optionally decoded output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Paintersrp/cmdrun/internal/cliutil"
	"github.com/Paintersrp/cmdrun/internal/metrics"
	"github.com/Paintersrp/cmdrun/internal/proc"
	"github.com/Paintersrp/cmdrun/internal/textcodec"
)

// Runner starts commands and tracks them with a Guard.
type Runner struct {
	guard     *Guard
	log       zerolog.Logger
	waitDelay time.Duration
	dir       string
	env       []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithGuard replaces the process-wide guard.
func WithGuard(g *Guard) Option {
	return func(r *Runner) {
		if g != nil {
			r.guard = g
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithWaitDelay bounds how long output draining may outlive a process.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithDir sets the working directory of started commands.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv adds KEY=value pairs to the environment of started commands.
func WithEnv(env []string) Option {
	return func(r *Runner) {
		r.env = append([]string(nil), env...)
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{log: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.guard == nil {
		r.guard = Default()
	}
	return r
}

// Guard returns the guard tracking this runner's processes.
func (r *Runner) Guard() *Guard {
	return r.guard
}

// Start spawns argv and returns its handle. The handle is registered with the
// runner's guard until it exits, and is killed if ctx is cancelled first.
func (r *Runner) Start(ctx context.Context, argv []string, discardOutput bool) (proc.Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := proc.Spawn(argv, proc.Options{
		DiscardOutput: discardOutput,
		Dir:           r.dir,
		Env:           r.env,
		WaitDelay:     r.waitDelay,
	})
	if err != nil {
		return nil, err
	}

	r.guard.Arm()
	release := r.guard.Track(h)
	r.log.Debug().
		Strs("argv", cliutil.RedactArgs(argv)).
		Int("pid", h.Pid()).
		Bool("discard_output", discardOutput).
		Msg("started command")

	go func() {
		defer release()
		select {
		case <-h.Done():
		case <-ctx.Done():
			if h.State() == proc.StateRunning {
				r.log.Warn().Int("pid", h.Pid()).Err(ctx.Err()).Msg("context done, killing command")
				metrics.IncrementKill(metrics.KillCanceled)
			}
			if err := h.Kill(); err != nil {
				r.log.Error().Err(err).Int("pid", h.Pid()).Msg("kill cancelled command")
			}
			<-h.Done()
		}
	}()
	return h, nil
}

// RunCmd runs argv to completion or until opts.Timeout elapses, in which case
// the whole process tree is killed and the output produced so far returned
// with TimedOut set. Only launch failures and invalid options are returned as
// errors with a zero Result; a cancelled ctx kills the process and returns the
// partial Result together with the context error.
func (r *Runner) RunCmd(ctx context.Context, argv []string, opts RunOptions) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	input, err := opts.Input.encode(opts.InputEncoding)
	if err != nil {
		return Result{}, err
	}
	if !opts.Raw {
		if _, err := textcodec.Lookup(opts.OutputEncoding); err != nil {
			return Result{}, fmt.Errorf("output encoding: %w", err)
		}
	}

	started := time.Now()
	h, err := r.Start(ctx, argv, opts.DiscardOutput)
	if err != nil {
		metrics.ObserveRun(metrics.OutcomeSpawnError, 0)
		r.log.Debug().Err(err).Strs("argv", cliutil.RedactArgs(argv)).Msg("spawn failed")
		return Result{}, err
	}

	go feedInput(h.Stdin(), input)

	timedOut := false
	out, code, waitErr := h.Wait(opts.Timeout)
	if errors.Is(waitErr, proc.ErrTimeout) {
		timedOut = true
		r.log.Warn().
			Strs("argv", cliutil.RedactArgs(argv)).
			Int("pid", h.Pid()).
			Dur("timeout", opts.Timeout).
			Msg("command timed out, killing process tree")
		metrics.IncrementKill(metrics.KillTimeout)
		if err := h.Kill(); err != nil {
			r.log.Error().Err(err).Int("pid", h.Pid()).Msg("kill timed out command")
		}
		out, code, waitErr = h.Wait(0)
	}

	res := Result{
		Output:     out,
		ReturnCode: code,
		TimedOut:   timedOut,
		Duration:   time.Since(started),
	}
	if !opts.Raw {
		res.Text = decodeOutput(out, opts.OutputEncoding, !opts.KeepColors)
		res.Decoded = true
	}

	outcome := metrics.OutcomeCompleted
	switch {
	case timedOut:
		outcome = metrics.OutcomeTimedOut
	case ctx.Err() != nil && h.State() == proc.StateKilled:
		outcome = metrics.OutcomeCanceled
	}
	metrics.ObserveRun(outcome, res.Duration)
	r.log.Debug().
		Int("pid", h.Pid()).
		Int("return_code", code).
		Bool("timed_out", timedOut).
		Dur("duration", res.Duration).
		Msg("command finished")

	if waitErr != nil {
		return res, fmt.Errorf("run %s: %w", argv[0], waitErr)
	}
	if outcome == metrics.OutcomeCanceled {
		return res, fmt.Errorf("run %s: %w", argv[0], ctx.Err())
	}
	return res, nil
}

func feedInput(w io.WriteCloser, data []byte) {
	// A command that exits without reading its input closes the pipe early;
	// that is not a failure of the run.
	if len(data) > 0 {
		_, _ = w.Write(data)
	}
	_ = w.Close()
}

func decodeOutput(raw []byte, encoding string, stripColors bool) string {
	// Lookup already succeeded in RunCmd, so Decode cannot fail here.
	text, _ := textcodec.Decode(encoding, raw)
	text = textcodec.NormalizeNewlines(text)
	if stripColors {
		text = textcodec.StripColors(text)
	}
	return text
}

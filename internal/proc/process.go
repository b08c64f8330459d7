package proc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWaitDelay bounds how long a process group member may keep the output
// pipe open after the leader exits. Once it passes, the group is terminated.
const DefaultWaitDelay = 2 * time.Second

var (
	// ErrTimeout is returned by Wait when the deadline passes before the process exits.
	ErrTimeout = errors.New("process: timeout exceeded")
	// ErrEmptyCommand is the cause of a SpawnError for a zero-length argument vector.
	ErrEmptyCommand = errors.New("process: command requires at least one argument")
)

// SpawnError reports that a command could not be launched.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	if len(e.Argv) == 0 {
		return fmt.Sprintf("spawn: %v", e.Err)
	}
	return fmt.Sprintf("spawn %s: %v", e.Argv[0], e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// State represents the lifecycle state of a spawned process.
type State int32

const (
	// StateRunning indicates the process has not been reaped yet.
	StateRunning State = iota
	// StateExited indicates the process exited on its own.
	StateExited
	// StateKilled indicates the process ended after Kill or by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Options configures Spawn.
type Options struct {
	// DiscardOutput sends stdout and stderr to the null device instead of
	// buffering them.
	DiscardOutput bool
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env holds additional KEY=value pairs merged over os.Environ.
	Env []string
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
}

// Handle is a spawned process whose whole tree can be terminated.
type Handle interface {
	// Pid returns the operating system process identifier.
	Pid() int
	// Stdin is the write end of the process's standard input.
	Stdin() io.WriteCloser
	// Kill terminates the process and every descendant. Only the first call
	// has any effect.
	Kill() error
	// Wait blocks until the process exits or timeout elapses. A timeout of
	// zero or less waits indefinitely. On timeout the output captured so far
	// is returned together with ErrTimeout.
	Wait(timeout time.Duration) ([]byte, int, error)
	// Done is closed once the process has been reaped and its output drained.
	Done() <-chan struct{}
	// State reports the current lifecycle state.
	State() State
}

// Spawn starts argv with a piped stdin and, unless discarded, a single buffer
// receiving both stdout and stderr in write order.
func Spawn(argv []string, opts Options) (Handle, error) {
	if len(argv) == 0 {
		return nil, &SpawnError{Err: ErrEmptyCommand}
	}
	argv = platformArgv(argv)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = mergeEnv(opts.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("stdin: %w", err)}
	}

	p := &process{
		cmd:       cmd,
		stdin:     stdin,
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
		waitDelay: DefaultWaitDelay,
		exitCode:  -1,
	}
	if opts.WaitDelay > 0 {
		p.waitDelay = opts.WaitDelay
	}

	// Both streams share one pipe owned by the handle, so draining can be
	// bounded separately from reaping the leader.
	var outW *os.File
	if !opts.DiscardOutput {
		outR, w, err := os.Pipe()
		if err != nil {
			_ = stdin.Close()
			return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("output pipe: %w", err)}
		}
		p.outR = outR
		outW = w
		cmd.Stdout = outW
		cmd.Stderr = outW
	}
	configureSysProcAttr(cmd)

	err = cmd.Start()
	if outW != nil {
		// The child holds its own copy of the write end.
		_ = outW.Close()
	}
	if err != nil {
		_ = stdin.Close()
		if p.outR != nil {
			_ = p.outR.Close()
		}
		return nil, &SpawnError{Argv: argv, Err: err}
	}

	go p.drain()
	go p.waitLoop()
	return p, nil
}

type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	outR      *os.File
	output    syncBuffer
	drained   chan struct{}
	waitDelay time.Duration
	done      chan struct{}

	terminated atomic.Bool
	state      atomic.Int32

	// Written before done is closed.
	exitCode int
	waitErr  error
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *process) Stdin() io.WriteCloser {
	return p.stdin
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) State() State {
	return State(p.state.Load())
}

func (p *process) Kill() error {
	if !p.terminated.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case <-p.done:
		// Already reaped; the identifier may belong to someone else now.
		return nil
	default:
	}
	if err := killTree(p.cmd.Process.Pid); err != nil {
		return fmt.Errorf("kill process tree %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *process) Wait(timeout time.Duration) ([]byte, int, error) {
	if timeout <= 0 {
		<-p.done
		return p.output.Bytes(), p.exitCode, p.waitErr
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.output.Bytes(), p.exitCode, p.waitErr
	case <-timer.C:
		return p.output.Bytes(), -1, ErrTimeout
	}
}

func (p *process) waitLoop() {
	err := p.cmd.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = fmt.Errorf("wait: %w", err)
	}

	code, signaled := exitStatus(p.cmd.ProcessState)
	p.exitCode = code

	if !p.awaitDrain() {
		// The leader is gone but a group member still holds the output pipe.
		// Terminate what is left of the group, then stop reading if it refuses.
		_ = killLingering(p.cmd.Process.Pid)
		if !p.awaitDrain() {
			_ = p.outR.Close()
		}
	}

	if signaled || p.terminated.Load() {
		p.state.Store(int32(StateKilled))
	} else {
		p.state.Store(int32(StateExited))
	}
	close(p.done)
}

func (p *process) drain() {
	defer close(p.drained)
	if p.outR == nil {
		return
	}
	// A read error after Close is the end of the stream either way.
	_, _ = io.Copy(&p.output, p.outR)
	_ = p.outR.Close()
}

func (p *process) awaitDrain() bool {
	timer := time.NewTimer(p.waitDelay)
	defer timer.Stop()
	select {
	case <-p.drained:
		return true
	case <-timer.C:
		return false
	}
}

// syncBuffer lets Wait snapshot output while the copy goroutine appends to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(data)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

// prependInterpreter returns argv with interpreter in front when argv[0]
// carries the given extension. argv itself is never modified.
func prependInterpreter(argv []string, ext, interpreter string) []string {
	out := append([]string(nil), argv...)
	if len(out) == 0 || interpreter == "" {
		return out
	}
	if !strings.HasSuffix(strings.ToLower(out[0]), ext) {
		return out
	}
	return append([]string{interpreter}, out...)
}

package runner

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Paintersrp/cmdrun/internal/metrics"
	"github.com/Paintersrp/cmdrun/internal/proc"
)

// ExitStatusTerminated is the host exit status after a termination signal.
const ExitStatusTerminated = 1

var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Guard tracks every process started by a Runner so that a termination
// request delivered to the host kills them before the host exits. It replaces
// a single process-wide handler slot: all outstanding handles are killed, not
// only the most recently started one.
type Guard struct {
	exit func(int)
	log  zerolog.Logger

	mu      sync.Mutex
	handles map[uint64]proc.Handle
	nextID  uint64

	armOnce sync.Once
	signals chan os.Signal
	stop    chan struct{}
}

// NewGuard creates a guard that calls exit after killing tracked processes on
// a termination signal. A nil exit defaults to os.Exit.
func NewGuard(exit func(int), log zerolog.Logger) *Guard {
	if exit == nil {
		exit = os.Exit
	}
	return &Guard{
		exit:    exit,
		log:     log,
		handles: make(map[uint64]proc.Handle),
		stop:    make(chan struct{}),
	}
}

var (
	defaultGuardOnce sync.Once
	defaultGuard     *Guard
)

// Default returns the process-wide guard.
func Default() *Guard {
	defaultGuardOnce.Do(func() {
		defaultGuard = NewGuard(os.Exit, zerolog.Nop())
	})
	return defaultGuard
}

// SetLogger replaces the guard's logger.
func (g *Guard) SetLogger(log zerolog.Logger) {
	g.mu.Lock()
	g.log = log
	g.mu.Unlock()
}

// Arm installs the signal handler. Calling it more than once is harmless.
func (g *Guard) Arm() {
	g.armOnce.Do(func() {
		g.signals = make(chan os.Signal, 1)
		signal.Notify(g.signals, terminationSignals...)
		go g.watch()
	})
}

// Disarm removes the signal handler. Tracked handles are left running.
func (g *Guard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.stop:
		return
	default:
	}
	if g.signals != nil {
		signal.Stop(g.signals)
	}
	close(g.stop)
}

// Track registers h until the returned release func is called.
func (g *Guard) Track(h proc.Handle) (release func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.handles[id] = h
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.handles, id)
			g.mu.Unlock()
		})
	}
}

// Active returns the number of tracked handles.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// Shutdown kills every tracked handle and returns how many were signalled.
func (g *Guard) Shutdown() int {
	g.mu.Lock()
	handles := make([]proc.Handle, 0, len(g.handles))
	for _, h := range g.handles {
		handles = append(handles, h)
	}
	log := g.log
	g.mu.Unlock()

	for _, h := range handles {
		running := h.State() == proc.StateRunning
		if err := h.Kill(); err != nil {
			log.Error().Err(err).Int("pid", h.Pid()).Msg("kill tracked process")
			continue
		}
		if running {
			metrics.IncrementKill(metrics.KillSignal)
		}
	}
	return len(handles)
}

func (g *Guard) watch() {
	select {
	case sig := <-g.signals:
		g.terminate(sig)
	case <-g.stop:
	}
}

func (g *Guard) terminate(sig os.Signal) {
	g.mu.Lock()
	log := g.log
	g.mu.Unlock()

	killed := g.Shutdown()
	log.Error().Str("signal", sig.String()).Int("killed", killed).Msg("termination requested, killed running commands")
	g.exit(ExitStatusTerminated)
}

//go:build !windows

package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configureSysProcAttr(cmd *exec.Cmd) {
	// A new session makes the child the leader of a fresh process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func platformArgv(argv []string) []string {
	return append([]string(nil), argv...)
}

func killTree(pid int) error {
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// killLingering terminates group members that outlived a reaped leader. The
// group identifier cannot be reused while any member is alive.
func killLingering(pid int) error {
	return killTree(pid)
}

// exitStatus reports a signal-terminated process as the negated signal number.
func exitStatus(state *os.ProcessState) (int, bool) {
	if state == nil {
		return -1, false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal()), true
	}
	return state.ExitCode(), false
}

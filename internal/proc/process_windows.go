//go:build windows

package proc

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// InterpreterEnv names the variable overriding the interpreter used for .py scripts.
const InterpreterEnv = "CMDRUN_PYTHON"

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// platformArgv runs Python scripts through an explicit interpreter, since
// Windows cannot execute them by path.
func platformArgv(argv []string) []string {
	interpreter := os.Getenv(InterpreterEnv)
	if interpreter == "" {
		interpreter = "python"
	}
	return prependInterpreter(argv, ".py", interpreter)
}

func killTree(pid int) error {
	// taskkill /T follows the child links the kernel keeps for the tree.
	// Its own output goes to the null device.
	cmd := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The tree is already gone.
			return nil
		}
		return err
	}
	return nil
}

// killLingering does nothing: once the leader is reaped its identifier no
// longer names the tree and may already belong to an unrelated process.
func killLingering(int) error {
	return nil
}

func exitStatus(state *os.ProcessState) (int, bool) {
	if state == nil {
		return -1, false
	}
	return state.ExitCode(), false
}

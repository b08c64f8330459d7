//go:build !windows

package runner

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/cmdrun/internal/proc"
)

func TestRunCmdNormalizesLineEndings(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"printf", `hello\r\nworld`}, RunOptions{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if res.Text != "hello\nworld" || res.ReturnCode != 0 || res.TimedOut {
		t.Fatalf("unexpected result: text=%q code=%d timedOut=%v", res.Text, res.ReturnCode, res.TimedOut)
	}
	if !res.Decoded {
		t.Fatal("expected decoded result")
	}
}

func TestRunCmdFeedsTextInput(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"cat"}, RunOptions{Input: Text("abc")})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if res.Text != "abc" {
		t.Fatalf("unexpected output: %q", res.Text)
	}
}

func TestRunCmdEncodesInput(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"od", "-An", "-tx1"}, RunOptions{
		Input:         Text("é"),
		InputEncoding: "iso-8859-1",
	})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if strings.TrimSpace(res.Text) != "e9" {
		t.Fatalf("expected single latin1 byte e9, got %q", res.Text)
	}
}

func TestRunCmdIgnoresUnreadInput(t *testing.T) {
	r, _ := newTestRunner(t)
	big := strings.Repeat("x", 1<<20)
	res, err := r.RunCmd(context.Background(), []string{"/bin/sh", "-c", "exit 4"}, RunOptions{Input: Text(big), Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if res.ReturnCode != 4 || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunCmdCombinesStreams(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"/bin/sh", "-c", "echo one; echo two >&2; echo three; exit 7"}, RunOptions{})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if res.Text != "one\ntwo\nthree\n" {
		t.Fatalf("unexpected combined output: %q", res.Text)
	}
	if res.ReturnCode != 7 {
		t.Fatalf("unexpected return code: %d", res.ReturnCode)
	}
}

func TestRunCmdLargeOutputDoesNotDeadlock(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"/bin/sh", "-c", "head -c 1048576 /dev/zero"}, RunOptions{Raw: true, Timeout: 20 * time.Second})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if res.TimedOut || len(res.Output) != 1<<20 {
		t.Fatalf("unexpected result: timedOut=%v len=%d", res.TimedOut, len(res.Output))
	}
}

func TestRunCmdRawOutputIsByteExact(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"printf", `a\r\nb\rc\033[31md\377`}, RunOptions{Raw: true})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	want := "a\r\nb\rc\x1b[31md\xff"
	if string(res.Output) != want {
		t.Fatalf("raw output altered: got %q want %q", res.Output, want)
	}
	if res.Decoded || res.Text != "" {
		t.Fatalf("raw result decoded: %+v", res)
	}
}

func TestRunCmdKeepColorsOnlyNormalizesNewlines(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"printf", `\033[32mok\033[0m\r\ndone\r`}, RunOptions{KeepColors: true})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if want := "\x1b[32mok\x1b[0m\ndone\n"; res.Text != want {
		t.Fatalf("unexpected text: got %q want %q", res.Text, want)
	}
}

func TestRunCmdStripsColorsByDefault(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.RunCmd(context.Background(), []string{"printf", `\033[1;31mfail\033[0m \377`}, RunOptions{})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if res.Text != "fail �" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestRunCmdTimeoutKillsProcessTree(t *testing.T) {
	r, guard := newTestRunner(t)
	start := time.Now()
	res, err := r.RunCmd(context.Background(), []string{"/bin/sh", "-c", "sleep 30 & echo $!; wait"}, RunOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("RunCmd: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout path took too long: %v", elapsed)
	}
	if res.ReturnCode != -int(unix.SIGTERM) {
		t.Fatalf("unexpected return code after kill: %d", res.ReturnCode)
	}

	childPID, err := strconv.Atoi(strings.TrimSpace(res.Text))
	if err != nil {
		t.Fatalf("output %q does not hold the child pid: %v", res.Text, err)
	}
	waitGone(t, childPID)

	waitFor(t, func() bool { return guard.Active() == 0 })
}

func TestRunCmdContextCancelKillsProcess(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := r.RunCmd(ctx, []string{"/bin/sh", "-c", "printf started; exec sleep 30"}, RunOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
	if res.TimedOut {
		t.Fatal("context cancellation must not be reported as a timeout")
	}
	if res.Text != "started" {
		t.Fatalf("partial output lost: %q", res.Text)
	}
	if res.ReturnCode != -int(unix.SIGTERM) {
		t.Fatalf("unexpected return code: %d", res.ReturnCode)
	}
}

func TestStartDiscardOutputTracksUntilExit(t *testing.T) {
	r, guard := newTestRunner(t)
	h, err := r.Start(context.Background(), []string{"/bin/sh", "-c", "echo hidden; sleep 0.2"}, true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if guard.Active() != 1 {
		t.Fatalf("expected handle to be tracked, active=%d", guard.Active())
	}
	out, code, err := h.Wait(10 * time.Second)
	if err != nil || code != 0 || len(out) != 0 {
		t.Fatalf("unexpected wait result: out=%q code=%d err=%v", out, code, err)
	}
	waitFor(t, func() bool { return guard.Active() == 0 })
}

func TestGuardShutdownKillsAllTracked(t *testing.T) {
	r, guard := newTestRunner(t)
	var handles []proc.Handle
	for i := 0; i < 2; i++ {
		h, err := r.Start(context.Background(), []string{"sleep", "30"}, true)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		handles = append(handles, h)
	}
	if killed := guard.Shutdown(); killed != 2 {
		t.Fatalf("expected 2 killed handles, got %d", killed)
	}
	for _, h := range handles {
		if _, _, err := h.Wait(5 * time.Second); err != nil {
			t.Fatalf("handle %d survived shutdown: %v", h.Pid(), err)
		}
		if h.State() != proc.StateKilled {
			t.Fatalf("unexpected state for %d: %s", h.Pid(), h.State())
		}
	}
}

func TestGuardSignalKillsAndExits(t *testing.T) {
	exited := make(chan int, 1)
	guard := NewGuard(func(code int) { exited <- code }, zerolog.Nop())
	t.Cleanup(guard.Disarm)
	r := New(WithGuard(guard))

	h, err := r.Start(context.Background(), []string{"sleep", "30"}, true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal self: %v", err)
	}

	select {
	case code := <-exited:
		if code != ExitStatusTerminated {
			t.Fatalf("unexpected exit status: %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("guard did not react to SIGTERM")
	}
	if _, _, err := h.Wait(5 * time.Second); err != nil {
		t.Fatalf("tracked process survived SIGTERM to host: %v", err)
	}
	if h.State() != proc.StateKilled {
		t.Fatalf("unexpected state: %s", h.State())
	}
	// The guard may fire again from a racing handler; the handle must not care.
	if err := h.Kill(); err != nil {
		t.Fatalf("second kill: %v", err)
	}
}

func waitGone(t *testing.T, pid int) {
	t.Helper()
	waitFor(t, func() bool {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return true
		}
		stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
		if err != nil {
			return false
		}
		fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
		return len(fields) > 0 && fields[0] == "Z"
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

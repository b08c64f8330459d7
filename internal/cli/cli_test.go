package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Paintersrp/cmdrun/internal/runner"
)

func executeCLI(t *testing.T, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd, ctx := newRootCommand()
	guard := runner.NewGuard(func(int) {}, zerolog.Nop())
	t.Cleanup(guard.Disarm)
	ctx.guard = guard

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

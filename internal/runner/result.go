package runner

import (
	"time"

	"github.com/Paintersrp/cmdrun/internal/textcodec"
)

// Input is the data fed to a command's standard input: either raw bytes or
// text that is encoded before writing. The zero value is empty input.
type Input struct {
	data   []byte
	text   string
	isText bool
}

// Bytes returns input written to the process verbatim.
func Bytes(b []byte) Input {
	return Input{data: append([]byte(nil), b...)}
}

// Text returns input encoded with RunOptions.InputEncoding before writing.
func Text(s string) Input {
	return Input{text: s, isText: true}
}

func (in Input) encode(encoding string) ([]byte, error) {
	if !in.isText {
		return in.data, nil
	}
	return textcodec.Encode(encoding, in.text)
}

// RunOptions configures RunCmd. The zero value runs without a timeout,
// with empty input, decoding output as UTF-8 and stripping colors.
type RunOptions struct {
	Input Input
	// Timeout of zero or less disables the deadline.
	Timeout time.Duration
	// InputEncoding applies to Text input. Empty means UTF-8.
	InputEncoding string
	// OutputEncoding decodes captured output. Empty means UTF-8.
	OutputEncoding string
	// Raw skips decoding, newline normalization and color stripping.
	Raw bool
	// KeepColors leaves terminal escape sequences in decoded output.
	KeepColors bool
	// DiscardOutput sends the command's output to the null device. Output
	// and Text of the result are then empty.
	DiscardOutput bool
}

// Result is the outcome of one RunCmd call.
type Result struct {
	// Output is the combined stdout and stderr exactly as written.
	Output []byte
	// Text is the decoded, normalized output. Set only when Decoded.
	Text string
	// Decoded reports whether Text holds the output.
	Decoded bool
	// ReturnCode is the exit status reported by the operating system. A
	// command killed by a signal reports the negated signal number on POSIX.
	ReturnCode int
	// TimedOut reports whether the command was killed after its timeout.
	TimedOut bool
	// Duration is how long the command ran, including the post-kill drain.
	Duration time.Duration
}

// String returns Text for decoded results and the raw output otherwise.
func (r Result) String() string {
	if r.Decoded {
		return r.Text
	}
	return string(r.Output)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Paintersrp/cmdrun/internal/cliutil"
	"github.com/Paintersrp/cmdrun/internal/runner"
)

// ResultRecord represents a run result ready for JSON encoding.
type ResultRecord struct {
	Timestamp  time.Time `json:"ts"`
	Command    []string  `json:"command"`
	Output     string    `json:"output"`
	Raw        bool      `json:"raw"`
	ReturnCode int       `json:"return_code"`
	TimedOut   bool      `json:"timed_out"`
	DurationMS int64     `json:"duration_ms"`
}

// NewResultRecord converts a run result into a record. Raw output is carried
// as a string; encoding/json replaces invalid UTF-8 with U+FFFD.
func NewResultRecord(argv []string, res runner.Result) ResultRecord {
	return ResultRecord{
		Timestamp:  time.Now(),
		Command:    cliutil.RedactArgs(argv),
		Output:     res.String(),
		Raw:        !res.Decoded,
		ReturnCode: res.ReturnCode,
		TimedOut:   res.TimedOut,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// EncodeResult encodes a run result to JSON, reporting errors to stderr if needed.
func EncodeResult(enc *json.Encoder, stderr io.Writer, argv []string, res runner.Result) {
	if enc == nil {
		return
	}
	record := NewResultRecord(argv, res)
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode result: %v\n", err)
	}
}

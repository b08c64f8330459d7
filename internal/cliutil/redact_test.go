package cliutil

import (
	"reflect"
	"testing"
)

func TestRedactSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "template", in: "token ${API_TOKEN}", want: "token ${[redacted]}"},
		{name: "assignment", in: "DB_PASSWORD=hunter2", want: "DB_PASSWORD=[redacted]"},
		{name: "quoted", in: `API_KEY: "abc123"`, want: `API_KEY: "[redacted]"`},
		{name: "plain", in: "--verbose", want: "--verbose"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RedactSecrets(tc.in); got != tc.want {
				t.Fatalf("RedactSecrets(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRedactArgs(t *testing.T) {
	argv := []string{"deploy", "--token", "s3cr3t", "--password=hunter2", "--tokens-count", "3", "API_KEY=abc"}
	want := []string{"deploy", "--token", "[redacted]", "--password=[redacted]", "--tokens-count", "3", "API_KEY=[redacted]"}

	got := RedactArgs(argv)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected redaction:\n got %q\nwant %q", got, want)
	}
	if argv[2] != "s3cr3t" {
		t.Fatalf("input argv modified: %q", argv)
	}
}

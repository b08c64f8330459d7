package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cmdrun.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("CMDRUN_TEST_TOKEN", "alpha")
	path := writeConfig(t, `version: 1
defaults:
  timeout: 1m30s
  inputEncoding: latin1
  outputEncoding: windows-1250
  stripColors: false
  waitDelay: 0.5
  dir: ./work
  env:
    TOKEN: ${CMDRUN_TEST_TOKEN}
log:
  level: debug
  format: json
metrics:
  file: /tmp/cmdrun.prom
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := cfg.Defaults.Timeout.Duration, 90*time.Second; got != want {
		t.Fatalf("unexpected timeout: got %v want %v", got, want)
	}
	if got, want := cfg.Defaults.WaitDelay.Duration, 500*time.Millisecond; got != want {
		t.Fatalf("unexpected waitDelay: got %v want %v", got, want)
	}
	if cfg.Defaults.ShouldStripColors() {
		t.Fatal("expected stripColors=false to be honoured")
	}
	if got, want := cfg.Defaults.Dir, filepath.Join(filepath.Dir(path), "work"); got != want {
		t.Fatalf("unexpected dir: got %q want %q", got, want)
	}
	if env := cfg.Defaults.EnvList(); len(env) != 1 || env[0] != "TOKEN=alpha" {
		t.Fatalf("unexpected env: %q", env)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Metrics.File != "/tmp/cmdrun.prom" {
		t.Fatalf("unexpected metrics file: %q", cfg.Metrics.File)
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("unexpected version: %d", cfg.Version)
	}
	if cfg.Defaults.InputEncoding != "utf-8" || cfg.Defaults.OutputEncoding != "utf-8" {
		t.Fatalf("unexpected encodings: %+v", cfg.Defaults)
	}
	if !cfg.Defaults.ShouldStripColors() {
		t.Fatal("expected colors to be stripped by default")
	}
	if cfg.Defaults.Timeout.Duration != 0 {
		t.Fatalf("expected no default timeout, got %v", cfg.Defaults.Timeout.Duration)
	}
	if cfg.Defaults.WaitDelay.Duration != DefaultWaitDelay {
		t.Fatalf("unexpected waitDelay: %v", cfg.Defaults.WaitDelay.Duration)
	}
}

func TestLoadSchemaViolation(t *testing.T) {
	path := writeConfig(t, `version: 1
defaults:
  timeout: soon
  bogus: true
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "does not match schema version 1") {
		t.Fatalf("error does not mention schema failure: %v", err)
	}
	for _, want := range []string{"  defaults.timeout: ", "  defaults: ", "bogus"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error does not mention %q: %v", want, err)
		}
	}
}

func TestLoadSchemaViolationUsesFieldPaths(t *testing.T) {
	path := writeConfig(t, `version: 1
defaults:
  env:
    PATH_LIST: [a, b]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "  defaults.env.PATH_LIST: ") {
		t.Fatalf("error does not use dotted field path: %v", err)
	}
	if strings.Contains(err.Error(), "/defaults") {
		t.Fatalf("error leaks JSON pointer syntax: %v", err)
	}
}

func TestLoadRejectsUnknownEncoding(t *testing.T) {
	path := writeConfig(t, `defaults:
  outputEncoding: klingon-8
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "defaults.outputEncoding") {
		t.Fatalf("expected outputEncoding error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	_, err := Load(writeConfig(t, "version: 2\n"))
	if err == nil {
		t.Fatal("expected error for version 2")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvTimeout, "2.5")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMetricsFile, "/tmp/env.prom")

	cfg, err := Load(writeConfig(t, "defaults:\n  timeout: 10s\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := cfg.Defaults.Timeout.Duration, 2500*time.Millisecond; got != want {
		t.Fatalf("env timeout not applied: got %v want %v", got, want)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env log level not applied: %q", cfg.Log.Level)
	}
	if cfg.Metrics.File != "/tmp/env.prom" {
		t.Fatalf("env metrics file not applied: %q", cfg.Metrics.File)
	}
}

func TestEnvOverrideInvalidTimeout(t *testing.T) {
	t.Setenv(EnvTimeout, "whenever")
	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatal("expected error for invalid CMDRUN_TIMEOUT")
	}
}

func TestLoadOrDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := LoadOrDefault(missing, false)
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if cfg.Defaults.OutputEncoding != "utf-8" {
		t.Fatalf("unexpected defaults: %+v", cfg.Defaults)
	}

	if _, err := LoadOrDefault(missing, true); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error for required config, got %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "3", want: 3 * time.Second},
		{in: "0.25", want: 250 * time.Millisecond},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		var d Duration
		err := d.UnmarshalText([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Fatalf("UnmarshalText(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && d.Duration != tt.want {
			t.Fatalf("UnmarshalText(%q) = %v, want %v", tt.in, d.Duration, tt.want)
		}
		if err == nil && !d.IsSet() {
			t.Fatalf("UnmarshalText(%q) should mark the duration as set", tt.in)
		}
	}
}

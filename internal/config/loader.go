package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables that override config file values.
const (
	EnvTimeout     = "CMDRUN_TIMEOUT"
	EnvLogLevel    = "CMDRUN_LOG_LEVEL"
	EnvLogFormat   = "CMDRUN_LOG_FORMAT"
	EnvMetricsFile = "CMDRUN_METRICS_FILE"
)

// Load reads a config document from the provided path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateAgainstSchema(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	if cfg.Defaults.Dir != "" && !filepath.IsAbs(cfg.Defaults.Dir) {
		cfg.Defaults.Dir = filepath.Clean(filepath.Join(filepath.Dir(absPath), cfg.Defaults.Dir))
	}

	cfg.ApplyDefaults()
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to built-in defaults when the file
// does not exist and required is false.
func LoadOrDefault(path string, required bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if required || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with CMDRUN_* environment variables.
func ApplyEnv(cfg *Config) error {
	if value := os.Getenv(EnvTimeout); value != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Defaults.Timeout = d
	}
	if value := os.Getenv(EnvLogLevel); value != "" {
		cfg.Log.Level = value
	}
	if value := os.Getenv(EnvLogFormat); value != "" {
		cfg.Log.Format = value
	}
	if value := os.Getenv(EnvMetricsFile); value != "" {
		cfg.Metrics.File = value
	}
	return nil
}

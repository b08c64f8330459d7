package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/cmdrun/internal/logging"
)

// CurrentVersion is the only supported config document version.
const CurrentVersion = 1

// DefaultWaitDelay bounds output draining after a process exits.
const DefaultWaitDelay = 2 * time.Second

// Duration wraps time.Duration for YAML unmarshalling. It accepts Go duration
// strings ("1m30s") and plain numbers of seconds (90, 0.5).
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalYAML decodes a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText parses a duration string or a number of seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		d.Duration = time.Duration(seconds * float64(time.Second))
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Config mirrors the cmdrun.yaml document structure.
type Config struct {
	Version  int            `yaml:"version"`
	Defaults RunDefaults    `yaml:"defaults"`
	Log      logging.Config `yaml:"log"`
	Metrics  MetricsSpec    `yaml:"metrics"`
}

// RunDefaults are applied to every command run by the CLI unless overridden
// by flags.
type RunDefaults struct {
	Timeout        Duration          `yaml:"timeout"`
	InputEncoding  string            `yaml:"inputEncoding"`
	OutputEncoding string            `yaml:"outputEncoding"`
	Raw            bool              `yaml:"raw"`
	StripColors    *bool             `yaml:"stripColors"`
	WaitDelay      Duration          `yaml:"waitDelay"`
	Dir            string            `yaml:"dir"`
	Env            map[string]string `yaml:"env"`
}

// MetricsSpec configures metrics export.
type MetricsSpec struct {
	// File receives the Prometheus text exposition after each CLI run.
	File string `yaml:"file"`
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with built-in defaults.
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Defaults.InputEncoding == "" {
		c.Defaults.InputEncoding = "utf-8"
	}
	if c.Defaults.OutputEncoding == "" {
		c.Defaults.OutputEncoding = "utf-8"
	}
	if c.Defaults.StripColors == nil {
		strip := true
		c.Defaults.StripColors = &strip
	}
	if !c.Defaults.WaitDelay.IsSet() {
		c.Defaults.WaitDelay = Duration{Duration: DefaultWaitDelay}
	}
	c.Log.ApplyDefaults()
}

// ShouldStripColors reports the effective stripColors default.
func (d RunDefaults) ShouldStripColors() bool {
	return d.StripColors == nil || *d.StripColors
}

// EnvList renders Env as sorted KEY=value pairs.
func (d RunDefaults) EnvList() []string {
	if len(d.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+d.Env[k])
	}
	return env
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

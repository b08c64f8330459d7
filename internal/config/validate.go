package config

import (
	"fmt"
	"strings"

	"github.com/Paintersrp/cmdrun/internal/textcodec"
)

// Validate enforces invariants the schema cannot express.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%s: unsupported version %d (want %d)", fieldPath("version"), c.Version, CurrentVersion)
	}
	d := c.Defaults
	if d.Timeout.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("defaults", "timeout"))
	}
	if d.WaitDelay.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("defaults", "waitDelay"))
	}
	if _, err := textcodec.Lookup(d.InputEncoding); err != nil {
		return fmt.Errorf("%s: %w", fieldPath("defaults", "inputEncoding"), err)
	}
	if _, err := textcodec.Lookup(d.OutputEncoding); err != nil {
		return fmt.Errorf("%s: %w", fieldPath("defaults", "outputEncoding"), err)
	}
	for key := range d.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return fmt.Errorf("%s: invalid variable name %q", fieldPath("defaults", "env"), key)
		}
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

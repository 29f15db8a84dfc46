// Package hostconfig implements the host settings layer (spec
// SPEC_FULL.md §4.8, component C8): a YAML file that configures
// logging and metrics for a process embedding the scheduler, layered
// outside the scheduler's own JSON config (spec.md §6.1), which stays
// plain encoding/json because that wire format is a contract of the
// spec itself.
package hostconfig

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/PIFO-TM/ns3-bmv2/common/logging"
)

// Config is the top-level host settings structure, analogous to the
// teacher's `config.Config` but scoped to what this module's ambient
// stack actually needs: logging and metrics, not node operation.
type Config struct {
	LogLevel  logging.Level  `yaml:"log_level"`
	LogFormat logging.Format `yaml:"log_format"`

	// MetricsNamespace is read from the settings file and returned in
	// Config; nothing in this module applies it, and the tracing
	// surface's (C7) Prometheus collectors keep their fixed names.
	MetricsNamespace string `yaml:"metrics_namespace,omitempty"`

	// SchedulerConfigPath points at the spec.md §6.1 JSON config for
	// the scheduler this process runs; hostconfig never reads it.
	SchedulerConfigPath string `yaml:"scheduler_config"`
}

// DefaultConfig returns the host settings a process should start from
// absent a config file.
func DefaultConfig() Config {
	return Config{
		LogLevel:  logging.LevelInfo,
		LogFormat: logging.FmtLogfmt,
	}
}

// Validate checks that a loaded Config is usable.
func (c *Config) Validate() error {
	if c.SchedulerConfigPath == "" {
		return fmt.Errorf("hostconfig: scheduler_config is required")
	}
	return nil
}

// Load reads and validates a host settings file, starting from
// DefaultConfig and overlaying whatever fields path sets, the way the
// teacher's InitConfig overlays a YAML file on top of its own
// DefaultConfig. Unknown fields in the file are rejected, as in the
// teacher, so a typo in a settings file fails loudly instead of being
// silently ignored.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("hostconfig: open %q: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return Config{}, fmt.Errorf("hostconfig: read %q: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("hostconfig: parse %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Package config provides configuration types, defaults, and persistence for
// the transom broker.
package config

import (
	"fmt"
	"time"

	"github.com/transom-dev/transom/internal/tracing"
)

// Config holds all configuration options for the broker.
type Config struct {
	// ListenAddr is the HTTP listen address for the RPC surface.
	ListenAddr string `mapstructure:"listen_addr"`

	// SchemaDir is the base directory relative schema paths resolve against.
	SchemaDir string `mapstructure:"schema_dir"`

	// WatchSchemas enables filesystem watching of SchemaDir so edited schema
	// files are re-read on the next registration.
	WatchSchemas bool `mapstructure:"watch_schemas"`

	// LogFile is the debug log destination. Empty logs to stderr.
	LogFile string `mapstructure:"log_file"`

	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`

	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Provider ProviderConfig `mapstructure:"provider"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// SandboxConfig bounds transform script execution.
type SandboxConfig struct {
	// TimeoutMs is the wall-clock budget per script execution.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// Timeout returns the sandbox budget as a duration.
func (s SandboxConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// ProviderConfig bounds outbound Provider invocations.
type ProviderConfig struct {
	// TimeoutMs is the per-call budget for invoking a Provider endpoint.
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// Timeout returns the provider call budget as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		ListenAddr:   ":8700",
		SchemaDir:    ".",
		WatchSchemas: true,
		LogFile:      "",
		Debug:        false,
		Sandbox:      SandboxConfig{TimeoutMs: 2000},
		Provider:     ProviderConfig{TimeoutMs: 10000},
		Tracing:      tracing.DefaultConfig(),
	}
}

// Validate checks the configuration for values the broker cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.SchemaDir == "" {
		return fmt.Errorf("schema_dir must not be empty")
	}
	if c.Sandbox.TimeoutMs < 0 {
		return fmt.Errorf("sandbox.timeout_ms must not be negative")
	}
	if c.Provider.TimeoutMs < 0 {
		return fmt.Errorf("provider.timeout_ms must not be negative")
	}
	return nil
}

// Package config handles configuration for bizflow-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the workspace configuration (bizflow.yaml).
type Config struct {
	// Paths (relative to the workspace root)
	StateFile   string `yaml:"stateFile"`   // Flow state snapshot
	RuntimeFile string `yaml:"runtimeFile"` // Runtime handoff data
	OutputDir   string `yaml:"outputDir"`   // Log, metrics and allure output
	EnvFile     string `yaml:"envFile"`     // dotenv file loaded into the child environment

	// Extra environment variables for step commands
	Env map[string]string `yaml:"env"`

	// Mobile device selection
	Device DeviceConfig `yaml:"device"`

	// Per-step overrides keyed by step ID
	Steps map[string]StepOverride `yaml:"steps"`
}

// DeviceConfig selects the Android target for the mobile step.
type DeviceConfig struct {
	Mode      string `yaml:"mode"` // emulator or real
	UDID      string `yaml:"udid"`
	Name      string `yaml:"name"`
	Preflight bool   `yaml:"preflight"` // Check adb before running
}

// StepOverride changes how a step of the fixed sequence is invoked.
// Pointer fields distinguish "not set" from an explicit zero.
type StepOverride struct {
	Command    string       `yaml:"command"`
	Dir        *string      `yaml:"dir"`
	WaitBefore *Duration    `yaml:"waitBefore"`
	Retry      *RetryConfig `yaml:"retry"`
}

// RetryConfig configures bounded fixed-delay retries.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	Delay       Duration `yaml:"delay"`
}

// Duration is a time.Duration read from YAML as "60s"/"1m30s" or as an
// integer number of milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: invalid duration", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromDir looks for bizflow.yaml or bizflow.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try bizflow.yaml first
	configPath := filepath.Join(dir, "bizflow.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try bizflow.yml
	configPath = filepath.Join(dir, "bizflow.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return empty config
	return &Config{}, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
)

// Default workspace-relative locations.
const (
	DefaultStateFile   = ".github/tmp/full-flow-state.json"
	DefaultRuntimeFile = "common/test-data/runtime/runtimeData.json"
	DefaultOutputDir   = "reports/flow"
	DefaultEnvFile     = ".env"
)

// DeviceMode selects between the CI emulator and a physical device.
type DeviceMode string

// DeviceMode values.
const (
	DeviceEmulator DeviceMode = "emulator"
	DeviceReal     DeviceMode = "real"
)

// Emulator identity used by CI.
const (
	EmulatorUDID = "emulator-5554"
	EmulatorName = "ci-emulator"
)

// Device is the resolved mobile target.
type Device struct {
	Mode DeviceMode
	UDID string
	Name string
}

// Settings is the configuration resolved once at process start. It is
// passed by value into the orchestrator and the step commands; nothing
// downstream reads the process environment.
type Settings struct {
	Root        string
	StatePath   string
	RuntimePath string
	OutputDir   string

	Device          Device
	DevicePreflight bool
	CI              bool

	// Env is the complete environment for step commands.
	Env map[string]string
}

// ResolveOptions carries inputs that come from outside the config file.
type ResolveOptions struct {
	Root       string
	DeviceMode string            // CLI override, empty = not set
	Environ    map[string]string // Process environment snapshot
}

// Resolve merges the workspace config, the dotenv file and the process
// environment into Settings. Precedence for variables, lowest first:
// config env, dotenv file, process environment.
func Resolve(cfg *Config, opts ResolveOptions) (Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	root := opts.Root
	if root == "" {
		root = "."
	}

	s := Settings{
		Root:            root,
		StatePath:       ResolvePath(root, orDefault(cfg.StateFile, DefaultStateFile)),
		RuntimePath:     ResolvePath(root, orDefault(cfg.RuntimeFile, DefaultRuntimeFile)),
		OutputDir:       ResolvePath(root, orDefault(cfg.OutputDir, DefaultOutputDir)),
		DevicePreflight: cfg.Device.Preflight,
	}

	env := make(map[string]string)
	for k, v := range cfg.Env {
		env[k] = v
	}

	dotenv, err := loadEnvFile(ResolvePath(root, orDefault(cfg.EnvFile, DefaultEnvFile)))
	if err != nil {
		return Settings{}, err
	}
	for k, v := range dotenv {
		env[k] = v
	}
	for k, v := range opts.Environ {
		env[k] = v
	}

	device, err := resolveDevice(cfg.Device, opts.DeviceMode, env)
	if err != nil {
		return Settings{}, err
	}
	s.Device = device
	s.CI = env["CI"] == "true"

	env["DEVICE"] = string(device.Mode)
	env["ANDROID_DEVICE"] = device.UDID
	env["ANDROID_DEVICE_NAME"] = device.Name
	if s.CI {
		env["CI"] = "true"
	}
	s.Env = env

	return s, nil
}

func resolveDevice(dc DeviceConfig, override string, env map[string]string) (Device, error) {
	mode := override
	if mode == "" {
		mode = dc.Mode
	}
	if mode == "" {
		if env["DEVICE"] == string(DeviceEmulator) {
			mode = string(DeviceEmulator)
		} else {
			mode = string(DeviceReal)
		}
	}

	switch DeviceMode(mode) {
	case DeviceEmulator:
		return Device{
			Mode: DeviceEmulator,
			UDID: orDefault(dc.UDID, EmulatorUDID),
			Name: orDefault(dc.Name, EmulatorName),
		}, nil
	case DeviceReal:
		return Device{
			Mode: DeviceReal,
			UDID: orDefault(dc.UDID, env["ANDROID_DEVICE"]),
			Name: orDefault(dc.Name, env["ANDROID_DEVICE_NAME"]),
		}, nil
	default:
		return Device{}, core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("invalid device mode %q (expected emulator or real)", mode))
	}
}

// ChildEnv returns Env as a sorted KEY=VALUE list for exec.Cmd.
func (s Settings) ChildEnv() []string {
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// EnvironMap converts an os.Environ-style list into a map.
func EnvironMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// loadEnvFile reads a dotenv file. A missing file is not an error.
func loadEnvFile(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return vars, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
)

func TestResolve_Defaults(t *testing.T) {
	root := t.TempDir()

	s, err := Resolve(nil, ResolveOptions{Root: root, Environ: map[string]string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.StatePath != filepath.Join(root, DefaultStateFile) {
		t.Errorf("StatePath = %q", s.StatePath)
	}
	if s.RuntimePath != filepath.Join(root, DefaultRuntimeFile) {
		t.Errorf("RuntimePath = %q", s.RuntimePath)
	}
	if s.OutputDir != filepath.Join(root, DefaultOutputDir) {
		t.Errorf("OutputDir = %q", s.OutputDir)
	}
	if s.Device.Mode != DeviceReal {
		t.Errorf("Device.Mode = %q, want real", s.Device.Mode)
	}
	if s.CI {
		t.Error("CI should be false without CI=true")
	}
}

func TestResolve_EmulatorFromEnv(t *testing.T) {
	s, err := Resolve(&Config{}, ResolveOptions{
		Root:    t.TempDir(),
		Environ: map[string]string{"DEVICE": "emulator", "CI": "true"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if s.Device != (Device{Mode: DeviceEmulator, UDID: EmulatorUDID, Name: EmulatorName}) {
		t.Errorf("Device = %+v", s.Device)
	}
	if !s.CI {
		t.Error("CI should be true")
	}
	if s.Env["ANDROID_DEVICE"] != EmulatorUDID || s.Env["DEVICE"] != "emulator" {
		t.Errorf("child env missing device vars: %v", s.Env)
	}
}

func TestResolve_RealDeviceFromDotenv(t *testing.T) {
	root := t.TempDir()
	dotenv := "ANDROID_DEVICE=R58M123ABC\nANDROID_DEVICE_NAME=Galaxy A52\nPLANNER_URL=https://planner.local\n"
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(dotenv), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Resolve(&Config{}, ResolveOptions{Root: root, Environ: map[string]string{}})
	if err != nil {
		t.Fatal(err)
	}

	if s.Device.UDID != "R58M123ABC" || s.Device.Name != "Galaxy A52" {
		t.Errorf("Device = %+v", s.Device)
	}
	if s.Env["PLANNER_URL"] != "https://planner.local" {
		t.Errorf("dotenv values should reach the child env: %v", s.Env)
	}
}

func TestResolve_Precedence(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("A=dotenv\nB=dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{Env: map[string]string{"A": "config", "B": "config", "C": "config"}}

	s, err := Resolve(cfg, ResolveOptions{Root: root, Environ: map[string]string{"A": "process"}})
	if err != nil {
		t.Fatal(err)
	}

	if s.Env["A"] != "process" || s.Env["B"] != "dotenv" || s.Env["C"] != "config" {
		t.Errorf("unexpected precedence: A=%s B=%s C=%s", s.Env["A"], s.Env["B"], s.Env["C"])
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Mode: "real"}}

	s, err := Resolve(cfg, ResolveOptions{Root: t.TempDir(), DeviceMode: "emulator"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Device.Mode != DeviceEmulator {
		t.Errorf("Device.Mode = %q, want emulator", s.Device.Mode)
	}
}

func TestResolve_InvalidDeviceMode(t *testing.T) {
	_, err := Resolve(&Config{Device: DeviceConfig{Mode: "tablet"}}, ResolveOptions{Root: t.TempDir()})
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSettings_ChildEnvSorted(t *testing.T) {
	s := Settings{Env: map[string]string{"B": "2", "A": "1"}}

	got := s.ChildEnv()
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Errorf("ChildEnv() = %v", got)
	}
}

func TestEnvironMap(t *testing.T) {
	m := EnvironMap([]string{"A=1", "B=x=y", "broken", "=skip"})

	if m["A"] != "1" || m["B"] != "x=y" {
		t.Errorf("EnvironMap() = %v", m)
	}
	if _, ok := m["broken"]; ok {
		t.Error("entries without = should be skipped")
	}
	if len(m) != 2 {
		t.Errorf("expected 2 entries, got %d", len(m))
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bizflow.yaml")

	content := `
stateFile: state/flow.json
runtimeFile: data/runtime.json
outputDir: out
env:
  PLANNER_URL: https://planner.qa.example.com
device:
  mode: emulator
  preflight: true
steps:
  goods-receipt:
    waitBefore: 90s
    retry:
      maxAttempts: 4
      delay: 30000
  bill-passing:
    command: npx playwright test tests/legacy/billPassing.spec.ts
    dir: web-app-automation
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StateFile != "state/flow.json" {
		t.Errorf("stateFile = %q", cfg.StateFile)
	}
	if cfg.Env["PLANNER_URL"] != "https://planner.qa.example.com" {
		t.Errorf("env = %v", cfg.Env)
	}
	if cfg.Device.Mode != "emulator" || !cfg.Device.Preflight {
		t.Errorf("device = %+v", cfg.Device)
	}

	gr := cfg.Steps["goods-receipt"]
	if gr.WaitBefore == nil || gr.WaitBefore.Std() != 90*time.Second {
		t.Errorf("waitBefore = %v", gr.WaitBefore)
	}
	if gr.Retry == nil || gr.Retry.MaxAttempts != 4 || gr.Retry.Delay.Std() != 30*time.Second {
		t.Errorf("retry = %+v", gr.Retry)
	}

	bp := cfg.Steps["bill-passing"]
	if bp.Command == "" || bp.Dir == nil || *bp.Dir != "web-app-automation" {
		t.Errorf("bill-passing override = %+v", bp)
	}
	if bp.WaitBefore != nil || bp.Retry != nil {
		t.Error("unset fields should stay nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bizflow.yaml")

	content := "steps:\n  goods-receipt:\n    waitBefore: soon\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/bizflow.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bizflow.yaml")

	if err := os.WriteFile(configPath, []byte(`steps: [invalid yaml`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromDir(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		wantMode string
	}{
		{"yaml", "bizflow.yaml", "emulator"},
		{"yml", "bizflow.yml", "real"},
		{"none", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				content := "device:\n  mode: " + tt.wantMode + "\n"
				if err := os.WriteFile(filepath.Join(dir, tt.file), []byte(content), 0644); err != nil {
					t.Fatal(err)
				}
			}

			cfg, err := LoadFromDir(dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Device.Mode != tt.wantMode {
				t.Errorf("device.mode = %q, want %q", cfg.Device.Mode, tt.wantMode)
			}
		})
	}
}

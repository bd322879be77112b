// Package device checks that the Android target of the mobile steps is
// reachable through ADB before the flow starts.
package device

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
)

// StateDevice is the adb state of a usable device.
const StateDevice = "device"

// Entry is one line of `adb devices`.
type Entry struct {
	Serial string
	State  string // device, offline, unauthorized, ...
}

// IsEmulator reports whether the serial names an emulator instance.
func (e Entry) IsEmulator() bool {
	return strings.HasPrefix(e.Serial, "emulator-")
}

// ADB runs adb commands.
type ADB struct {
	path string
}

// FindADB locates the adb binary in PATH, then in androidHome/platform-tools.
func FindADB(androidHome string) (*ADB, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return &ADB{path: path}, nil
	}

	if androidHome != "" {
		name := "adb"
		if runtime.GOOS == "windows" {
			name = "adb.exe"
		}
		path := filepath.Join(androidHome, "platform-tools", name)
		if _, err := os.Stat(path); err == nil {
			return &ADB{path: path}, nil
		}
	}

	return nil, fmt.Errorf("adb not found in PATH or ANDROID_HOME; ensure Android SDK is installed")
}

// NewADB uses the adb binary at path.
func NewADB(path string) *ADB {
	return &ADB{path: path}
}

// Devices lists attached devices in any state.
func (a *ADB) Devices() ([]Entry, error) {
	cmd := exec.Command(a.path, "devices")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		return nil, fmt.Errorf("adb devices: %w: %s", err, msg)
	}
	return ParseDevices(stdout.String()), nil
}

// CheckConnected verifies serial is attached and ready. An empty serial
// accepts any ready device and returns the first one.
func (a *ADB) CheckConnected(serial string) (Entry, error) {
	entries, err := a.Devices()
	if err != nil {
		return Entry{}, core.ErrDeviceNotFound.WithCause(err)
	}
	logger.Debug("adb devices: %v", entries)

	for _, e := range entries {
		if serial != "" && e.Serial != serial {
			continue
		}
		if e.State == StateDevice {
			return e, nil
		}
		return e, core.ErrDeviceNotFound.
			WithMessage(fmt.Sprintf("device %s is %s", e.Serial, e.State)).
			WithDetails(map[string]interface{}{"serial": e.Serial, "state": e.State})
	}

	msg := "no android device connected"
	if serial != "" {
		msg = fmt.Sprintf("device %s not connected", serial)
	}
	return Entry{}, core.ErrDeviceNotFound.
		WithMessage(msg).
		WithDetails(map[string]interface{}{"serial": serial, "attached": len(entries)})
}

// ParseDevices parses `adb devices` output.
func ParseDevices(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		entries = append(entries, Entry{Serial: parts[0], State: parts[1]})
	}
	return entries
}

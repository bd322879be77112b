// Package executor runs the business flow: it invokes each step command,
// applies the retry policy and records every transition in the flow state.
package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
)

// Executor runs one named external command to completion. Failures are
// returned as a Result, never swallowed.
type Executor interface {
	Run(name, command string) core.Result
}

// ShellExecutor runs commands through the platform shell with inherited
// stdio. It blocks until the child exits and cannot be interrupted.
type ShellExecutor struct {
	Dir string   // Working directory (workspace root)
	Env []string // Complete child environment, nil = inherit

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewShellExecutor creates a ShellExecutor attached to the process stdio.
func NewShellExecutor(dir string, env []string) *ShellExecutor {
	return &ShellExecutor{
		Dir:    dir,
		Env:    env,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes command and maps its exit status to a Result.
func (e *ShellExecutor) Run(name, command string) core.Result {
	cmd := shellCommand(command)
	cmd.Dir = e.Dir
	cmd.Env = e.Env
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	logger.Info("[%s] exec: %s", name, command)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		logger.Info("[%s] exited 0 after %s", name, elapsed.Round(time.Millisecond))
		return core.Success(elapsed)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		reason := fmt.Sprintf("exit code %d", code)
		if code < 0 {
			// Killed by a signal
			reason = exitErr.String()
		}
		logger.Warn("[%s] %s after %s", name, reason, elapsed.Round(time.Millisecond))
		return core.Failure(code, reason, elapsed)
	}

	logger.Error("[%s] could not start command: %v", name, err)
	r := core.Failure(-1, err.Error(), elapsed)
	r.Err = core.ErrSpawnFailed.WithCause(err)
	return r
}

func shellCommand(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", command)
	}
	return exec.Command("sh", "-c", command)
}

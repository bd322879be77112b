package core

import "time"

// Result is the outcome of one invocation of an external step command.
// Failures are values, never panics.
type Result struct {
	OK       bool
	ExitCode int    // -1 when the command could not be started
	Reason   string // Human-readable failure reason, empty on success
	Duration time.Duration
	Err      error // Underlying spawn/wait error, if any
}

// Success returns a passing Result
func Success(d time.Duration) Result {
	return Result{OK: true, Duration: d}
}

// Failure returns a failing Result with the given exit code and reason
func Failure(exitCode int, reason string, d time.Duration) Result {
	return Result{ExitCode: exitCode, Reason: reason, Duration: d}
}

// StepOutcome summarizes one business step of a run
type StepOutcome struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Status      FlowStatus    `json:"status"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"maxAttempts"`
	StartTime   time.Time     `json:"startTime"`
	Duration    time.Duration `json:"duration"`
	Reason      string        `json:"reason,omitempty"`
	Flaky       bool          `json:"flaky,omitempty"` // Passed after at least one failed attempt
}

// Attempt records one invocation of a step command
type Attempt struct {
	Number    int
	StartTime time.Time
	Result    Result
}

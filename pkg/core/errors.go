package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: step_failed, state_write, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so copies made by the With* builders still match
// their predefined error.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	ErrStepFailed = &ExecutionError{
		Category: ErrCategoryStep,
		Code:     "step_failed",
		Message:  "step failed",
	}
	ErrSpawnFailed = &ExecutionError{
		Category: ErrCategorySpawn,
		Code:     "spawn_failed",
		Message:  "could not start step command",
	}
	ErrStateWrite = &ExecutionError{
		Category: ErrCategoryState,
		Code:     "state_write",
		Message:  "could not write flow state",
	}
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrUnknownStep = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unknown_step",
		Message:  "unknown step",
	}
	ErrDeviceNotFound = &ExecutionError{
		Category: ErrCategoryDevice,
		Code:     "device_not_found",
		Message:  "android device not connected",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// FlowError is the terminal failure of a flow: a step failed with no
// attempts left.
type FlowError struct {
	StepID      string
	Step        string
	Attempts    int
	MaxAttempts int
	Reason      string
}

func (e *FlowError) Error() string {
	if e.MaxAttempts > 1 {
		return fmt.Sprintf("%s failed after %d/%d attempts: %s", e.Step, e.Attempts, e.MaxAttempts, e.Reason)
	}
	return fmt.Sprintf("%s failed: %s", e.Step, e.Reason)
}

// Unwrap lets errors.Is(err, ErrStepFailed) match a FlowError
func (e *FlowError) Unwrap() error {
	return ErrStepFailed
}

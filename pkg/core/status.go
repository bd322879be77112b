package core

// FlowStatus is the persisted status of an orchestration run.
//
// Lifecycle:
//
//	running → running (next step or next attempt)
//	        ↘ failed (terminal)
//	        ↘ passed (terminal, after the last step)
type FlowStatus string

// FlowStatus values.
const (
	StatusRunning FlowStatus = "running"
	StatusFailed  FlowStatus = "failed"
	StatusPassed  FlowStatus = "passed"
)

// String returns the string representation of FlowStatus
func (s FlowStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions follow this status
func (s FlowStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusPassed
}

// IsValid reports whether s is one of the known statuses
func (s FlowStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusFailed, StatusPassed:
		return true
	default:
		return false
	}
}

// ErrorCategory classifies the type of error for reporting
type ErrorCategory int

const (
	ErrCategoryNone   ErrorCategory = iota // No error
	ErrCategoryStep                        // External command exited non-zero
	ErrCategorySpawn                       // External command could not be started
	ErrCategoryState                       // Flow state could not be persisted
	ErrCategoryConfig                      // Invalid configuration, unknown step
	ErrCategoryDevice                      // Mobile device not available
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryStep:
		return "step"
	case ErrCategorySpawn:
		return "spawn"
	case ErrCategoryState:
		return "state"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Package validator checks the workspace before a flow run. It reports every
// problem at once so a misconfigured workspace fails before the first step
// instead of halfway through the flow.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	Step    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Steps is the list of step IDs checked, in execution order.
	Steps []string
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Err folds all errors into one ErrInvalidConfig, or returns nil.
func (r *Result) Err() error {
	if r.IsValid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return core.ErrInvalidConfig.WithMessage(
		fmt.Sprintf("workspace has %d problem(s):\n  %s", len(msgs), strings.Join(msgs, "\n  ")))
}

// Validate checks that root is a directory and that every step has a
// command and an existing working directory.
func Validate(root string, steps []flow.Step) *Result {
	result := &Result{}

	info, err := os.Stat(root)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			Step:    "workspace",
			Message: fmt.Sprintf("cannot access %s: %v", root, err),
		})
		return result
	}
	if !info.IsDir() {
		result.Errors = append(result.Errors, &ValidationError{
			Step:    "workspace",
			Message: fmt.Sprintf("%s is not a directory", root),
		})
		return result
	}

	seen := make(map[string]bool)
	for _, step := range steps {
		validateStep(root, step, result, seen)
	}

	return result
}

func validateStep(root string, step flow.Step, result *Result, seen map[string]bool) {
	if seen[step.ID] {
		result.Errors = append(result.Errors, &ValidationError{Step: step.ID, Message: "duplicate step"})
		return
	}
	seen[step.ID] = true
	result.Steps = append(result.Steps, step.ID)

	if strings.TrimSpace(step.Command) == "" {
		result.Errors = append(result.Errors, &ValidationError{Step: step.ID, Message: "no command"})
	}

	if step.Dir == "" {
		return
	}
	dir := step.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		result.Errors = append(result.Errors, &ValidationError{
			Step:    step.ID,
			Message: fmt.Sprintf("suite directory %s not found", step.Dir),
		})
	case !info.IsDir():
		result.Errors = append(result.Errors, &ValidationError{
			Step:    step.ID,
			Message: fmt.Sprintf("suite directory %s is not a directory", step.Dir),
		})
	}
}

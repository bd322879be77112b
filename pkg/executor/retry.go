package executor

import (
	"fmt"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
	"github.com/devicelab-dev/bizflow-runner/pkg/state"
)

// runWithRetry invokes a flaky step up to MaxAttempts times. Attempts are
// strictly sequential with a fixed delay between them. The first success
// returns immediately; the last failure is terminal.
func (o *Orchestrator) runWithRetry(step flow.Step, outcome *core.StepOutcome) error {
	command := step.CommandLine()
	maxAttempts := step.MaxAttempts()

	for n := 1; n <= maxAttempts; n++ {
		if err := o.write(state.FlowState{
			Status:      core.StatusRunning,
			Step:        step.Name,
			Command:     command,
			Attempt:     n,
			MaxAttempts: maxAttempts,
		}); err != nil {
			return err
		}

		r := o.attempt(step, command, n, outcome)
		if r.OK {
			if n > 1 {
				logger.Info("[%s] passed on attempt %d/%d", step.Name, n, maxAttempts)
			}
			return nil
		}

		if err := o.write(state.FlowState{
			Status:      core.StatusFailed,
			Step:        step.Name,
			Command:     command,
			Attempt:     n,
			MaxAttempts: maxAttempts,
			Reason:      r.Reason,
		}); err != nil {
			return err
		}

		if n == maxAttempts {
			return &core.FlowError{
				StepID:      step.ID,
				Step:        step.Name,
				Attempts:    n,
				MaxAttempts: maxAttempts,
				Reason:      r.Reason,
			}
		}

		logger.Warn("[%s] attempt %d/%d failed: %s", step.Name, n, maxAttempts, r.Reason)
		reason := fmt.Sprintf("retry %d/%d of %s", n+1, maxAttempts, step.Name)
		if step.Retry.Delay > 0 {
			o.obs.Waiting(step, reason, step.Retry.Delay)
		}
		o.config.Waiter.Wait(reason, step.Retry.Delay)
	}
	return nil
}

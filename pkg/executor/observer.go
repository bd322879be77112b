package executor

import (
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
)

// Observer receives orchestration events in order. Implementations must not
// block for long: they run on the orchestrator's goroutine.
type Observer interface {
	FlowStart(runID string, steps []flow.Step)
	Waiting(step flow.Step, reason string, d time.Duration)
	StepStart(step flow.Step, index, total int)
	AttemptEnd(step flow.Step, attempt core.Attempt, maxAttempts int)
	StepEnd(step flow.Step, outcome core.StepOutcome)
	FlowEnd(result *RunResult)
}

// NopObserver implements Observer with no-ops. Embed it to handle only
// some events.
type NopObserver struct{}

func (NopObserver) FlowStart(string, []flow.Step) {}
func (NopObserver) Waiting(flow.Step, string, time.Duration) {}
func (NopObserver) StepStart(flow.Step, int, int) {}
func (NopObserver) AttemptEnd(flow.Step, core.Attempt, int) {}
func (NopObserver) StepEnd(flow.Step, core.StepOutcome) {}
func (NopObserver) FlowEnd(*RunResult) {}

// observers fans events out to every registered Observer.
type observers []Observer

func (obs observers) FlowStart(runID string, steps []flow.Step) {
	for _, o := range obs {
		o.FlowStart(runID, steps)
	}
}

func (obs observers) Waiting(step flow.Step, reason string, d time.Duration) {
	for _, o := range obs {
		o.Waiting(step, reason, d)
	}
}

func (obs observers) StepStart(step flow.Step, index, total int) {
	for _, o := range obs {
		o.StepStart(step, index, total)
	}
}

func (obs observers) AttemptEnd(step flow.Step, attempt core.Attempt, maxAttempts int) {
	for _, o := range obs {
		o.AttemptEnd(step, attempt, maxAttempts)
	}
}

func (obs observers) StepEnd(step flow.Step, outcome core.StepOutcome) {
	for _, o := range obs {
		o.StepEnd(step, outcome)
	}
}

func (obs observers) FlowEnd(result *RunResult) {
	for _, o := range obs {
		o.FlowEnd(result)
	}
}

package executor

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
	"github.com/devicelab-dev/bizflow-runner/pkg/runtimedata"
	"github.com/devicelab-dev/bizflow-runner/pkg/state"
)

// FinalStep is the step name recorded once the whole sequence passed.
const FinalStep = "all"

// StateWriter persists flow state snapshots.
type StateWriter interface {
	Write(st state.FlowState) error
}

// RuntimeReader gives read access to the runtime handoff file.
type RuntimeReader interface {
	Get(key string) (string, error)
}

// Config configures the orchestrator.
type Config struct {
	RunID     string        // Generated when empty
	Waiter    Waiter        // Defaults to FixedWait
	Runtime   RuntimeReader // Optional, source of the PO number
	Observers []Observer
	Now       func() time.Time
}

// RunResult contains the outcome of a flow run.
type RunResult struct {
	RunID       string
	Status      core.FlowStatus
	StartTime   time.Time
	Duration    time.Duration
	TotalSteps  int
	PassedSteps int
	FailedStep  string             // Name of the step that aborted the run
	Steps       []core.StepOutcome // Executed steps, in order
	Skipped     []flow.Step        // Steps never started
	PONumber    string
	Err         error
}

// Orchestrator runs the business sequence one step at a time.
type Orchestrator struct {
	exec   Executor
	store  StateWriter
	config Config
	obs    observers

	poNumber string
}

// New creates an Orchestrator.
func New(exec Executor, store StateWriter, cfg Config) *Orchestrator {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Waiter == nil {
		cfg.Waiter = FixedWait{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		exec:   exec,
		store:  store,
		config: cfg,
		obs:    observers(cfg.Observers),
	}
}

// RunID returns the identifier recorded in every state snapshot.
func (o *Orchestrator) RunID() string {
	return o.config.RunID
}

// Run executes steps strictly in order. The first unrecoverable failure
// aborts the run: later steps are never invoked and the failed record is
// left in place. A *core.FlowError is returned for step failures, a
// core.ErrStateWrite error when the state file cannot be written.
func (o *Orchestrator) Run(steps []flow.Step) (*RunResult, error) {
	result := &RunResult{
		RunID:      o.config.RunID,
		Status:     core.StatusRunning,
		StartTime:  o.config.Now(),
		TotalSteps: len(steps),
	}

	logger.Info("flow %s started with %d steps", result.RunID, len(steps))
	o.obs.FlowStart(result.RunID, steps)

	var runErr error
	for i, step := range steps {
		if step.WaitBefore > 0 {
			reason := "propagation before " + step.Name
			o.obs.Waiting(step, reason, step.WaitBefore)
			o.config.Waiter.Wait(reason, step.WaitBefore)
		}

		o.obs.StepStart(step, i, len(steps))
		outcome, err := o.runStep(step)
		result.Steps = append(result.Steps, outcome)
		o.obs.StepEnd(step, outcome)

		if err != nil {
			runErr = err
			result.FailedStep = step.Name
			for _, rest := range steps[i+1:] {
				result.Skipped = append(result.Skipped, rest)
			}
			break
		}
		result.PassedSteps++
	}

	if runErr == nil {
		runErr = o.write(state.FlowState{Status: core.StatusPassed, Step: FinalStep})
	}

	result.Duration = o.config.Now().Sub(result.StartTime)
	result.PONumber = o.poNumber
	result.Err = runErr
	if runErr != nil {
		result.Status = core.StatusFailed
		logger.Error("flow %s aborted: %v", result.RunID, runErr)
	} else {
		result.Status = core.StatusPassed
		logger.Info("flow %s passed in %s", result.RunID, result.Duration.Round(time.Millisecond))
	}

	o.obs.FlowEnd(result)
	return result, runErr
}

// runStep runs one step with or without its retry policy.
func (o *Orchestrator) runStep(step flow.Step) (core.StepOutcome, error) {
	outcome := core.StepOutcome{
		ID:          step.ID,
		Name:        step.Name,
		Status:      core.StatusRunning,
		MaxAttempts: step.MaxAttempts(),
		StartTime:   o.config.Now(),
	}

	var err error
	if step.Retry != nil {
		err = o.runWithRetry(step, &outcome)
	} else {
		err = o.runOnce(step, &outcome)
	}
	outcome.Duration = o.config.Now().Sub(outcome.StartTime)

	if err == nil {
		outcome.Status = core.StatusPassed
		outcome.Flaky = outcome.Attempts > 1
		o.peekPONumber()
	} else {
		outcome.Status = core.StatusFailed
		var flowErr *core.FlowError
		if !errors.As(err, &flowErr) && outcome.Reason == "" {
			outcome.Reason = err.Error()
		}
	}
	return outcome, err
}

// runOnce is the single-attempt path. No attempt fields are recorded.
func (o *Orchestrator) runOnce(step flow.Step, outcome *core.StepOutcome) error {
	command := step.CommandLine()
	if err := o.write(state.FlowState{Status: core.StatusRunning, Step: step.Name, Command: command}); err != nil {
		return err
	}

	r := o.attempt(step, command, 1, outcome)
	if r.OK {
		return nil
	}

	if err := o.write(state.FlowState{
		Status:  core.StatusFailed,
		Step:    step.Name,
		Command: command,
		Reason:  r.Reason,
	}); err != nil {
		return err
	}
	return &core.FlowError{
		StepID:      step.ID,
		Step:        step.Name,
		Attempts:    1,
		MaxAttempts: 1,
		Reason:      r.Reason,
	}
}

// attempt invokes the executor once and records the attempt.
func (o *Orchestrator) attempt(step flow.Step, command string, n int, outcome *core.StepOutcome) core.Result {
	a := core.Attempt{Number: n, StartTime: o.config.Now()}
	a.Result = o.exec.Run(step.Name, command)

	outcome.Attempts = n
	if !a.Result.OK {
		outcome.Reason = a.Result.Reason
	}
	o.obs.AttemptEnd(step, a, outcome.MaxAttempts)
	return a.Result
}

// write stamps and persists a snapshot.
func (o *Orchestrator) write(st state.FlowState) error {
	st.RunID = o.config.RunID
	st.PONumber = o.poNumber
	st.Timestamp = o.config.Now().UTC()
	if err := o.store.Write(st); err != nil {
		return err
	}
	logger.Debug("state: %s %q attempt=%d/%d", st.Status, st.Step, st.Attempt, st.MaxAttempts)
	return nil
}

// peekPONumber picks up the correlation id once a step has published it.
// Missing or unreadable runtime data is not an error.
func (o *Orchestrator) peekPONumber() {
	if o.config.Runtime == nil {
		return
	}
	po, err := o.config.Runtime.Get(runtimedata.KeyPONumber)
	if err != nil {
		logger.Debug("runtime data not readable: %v", err)
		return
	}
	if po != "" && po != o.poNumber {
		logger.Info("PO number: %s", po)
		o.poNumber = po
	}
}

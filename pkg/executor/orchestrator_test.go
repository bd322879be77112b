package executor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
	"github.com/devicelab-dev/bizflow-runner/pkg/state"
)

// events is a shared, ordered log of everything the fakes observe.
type events []string

func (e *events) add(format string, v ...interface{}) {
	*e = append(*e, fmt.Sprintf(format, v...))
}

// scriptedExecutor returns queued results per step name. Unscripted calls
// succeed.
type scriptedExecutor struct {
	results map[string][]bool
	calls   map[string]int
	log     *events
	store   *recordingStore
	t       *testing.T
}

func newScriptedExecutor(t *testing.T, log *events, store *recordingStore) *scriptedExecutor {
	return &scriptedExecutor{
		results: make(map[string][]bool),
		calls:   make(map[string]int),
		log:     log,
		store:   store,
		t:       t,
	}
}

func (e *scriptedExecutor) script(name string, results ...bool) {
	e.results[name] = results
}

func (e *scriptedExecutor) Run(name, command string) core.Result {
	// The record must say running for this step before the child starts
	if last, ok := e.store.last(); !ok || last.Status != core.StatusRunning || last.Step != name {
		e.t.Errorf("%s invoked without a preceding running record (last=%+v)", name, last)
	}

	n := e.calls[name]
	e.calls[name]++
	e.log.add("exec %s", name)

	ok := true
	if queued := e.results[name]; n < len(queued) {
		ok = queued[n]
	}
	if ok {
		return core.Success(time.Millisecond)
	}
	return core.Failure(1, "exit code 1", time.Millisecond)
}

func (e *scriptedExecutor) total() int {
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

type recordingStore struct {
	writes []state.FlowState
	failAt int // 1-based write index that fails, 0 = never
}

func (s *recordingStore) Write(st state.FlowState) error {
	if s.failAt > 0 && len(s.writes)+1 == s.failAt {
		return core.ErrStateWrite.WithCause(errors.New("disk full"))
	}
	s.writes = append(s.writes, st)
	return nil
}

func (s *recordingStore) last() (state.FlowState, bool) {
	if len(s.writes) == 0 {
		return state.FlowState{}, false
	}
	return s.writes[len(s.writes)-1], true
}

type recordingWaiter struct {
	waits []time.Duration
	log   *events
}

func (w *recordingWaiter) Wait(reason string, d time.Duration) {
	w.waits = append(w.waits, d)
	w.log.add("wait %s", d)
}

type fakeRuntime struct {
	values map[string]string
}

func (r *fakeRuntime) Get(key string) (string, error) {
	return r.values[key], nil
}

type harness struct {
	exec   *scriptedExecutor
	store  *recordingStore
	waiter *recordingWaiter
	log    *events
}

func newHarness(t *testing.T) *harness {
	log := &events{}
	store := &recordingStore{}
	return &harness{
		exec:   newScriptedExecutor(t, log, store),
		store:  store,
		waiter: &recordingWaiter{log: log},
		log:    log,
	}
}

func (h *harness) orchestrator(observers ...Observer) *Orchestrator {
	return New(h.exec, h.store, Config{
		RunID:     "run-1",
		Waiter:    h.waiter,
		Observers: observers,
	})
}

func TestRun_ScenarioA_RetryRecovers(t *testing.T) {
	h := newHarness(t)
	h.exec.script("Mobile - Goods Receipt", false, false, true)

	result, err := h.orchestrator().Run(flow.PurchaseOrder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusPassed {
		t.Errorf("Status = %s, want passed", result.Status)
	}
	if result.PassedSteps != 5 {
		t.Errorf("PassedSteps = %d, want 5", result.PassedSteps)
	}
	if h.exec.calls["Mobile - Goods Receipt"] != 3 {
		t.Errorf("goods receipt invoked %d times, want 3", h.exec.calls["Mobile - Goods Receipt"])
	}

	final, _ := h.store.last()
	if final.Status != core.StatusPassed || final.Step != FinalStep {
		t.Errorf("final state = %+v, want passed/all", final)
	}
	if final.Attempt != 0 || final.Command != "" {
		t.Errorf("final state should not carry attempt or command: %+v", final)
	}

	gr := result.Steps[2]
	if gr.Attempts != 3 || !gr.Flaky || gr.Status != core.StatusPassed {
		t.Errorf("goods receipt outcome = %+v", gr)
	}

	// Propagation wait plus two retry delays
	want := []time.Duration{flow.DefaultPropagationWait, flow.DefaultGoodsReceiptDelay, flow.DefaultGoodsReceiptDelay}
	if len(h.waiter.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", h.waiter.waits, want)
	}
	for i := range want {
		if h.waiter.waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, h.waiter.waits[i], want[i])
		}
	}
}

func TestRun_ScenarioB_AbortsAtFailedStep(t *testing.T) {
	h := newHarness(t)
	h.exec.script("Planner - Approve PO", false)

	result, err := h.orchestrator().Run(flow.PurchaseOrder())

	var flowErr *core.FlowError
	if !errors.As(err, &flowErr) {
		t.Fatalf("expected *core.FlowError, got %v", err)
	}
	if !errors.Is(err, core.ErrStepFailed) {
		t.Error("FlowError should match ErrStepFailed")
	}
	if flowErr.Step != "Planner - Approve PO" {
		t.Errorf("FlowError.Step = %q", flowErr.Step)
	}

	if h.exec.calls["Mobile - Goods Receipt"] != 0 {
		t.Error("goods receipt must not run after an earlier failure")
	}
	if h.exec.total() != 2 {
		t.Errorf("expected 2 invocations, got %d", h.exec.total())
	}
	if len(h.waiter.waits) != 0 {
		t.Errorf("no wait expected, got %v", h.waiter.waits)
	}

	final, _ := h.store.last()
	if final.Status != core.StatusFailed || final.Step != "Planner - Approve PO" {
		t.Errorf("final state = %+v", final)
	}
	if final.Attempt != 0 || final.MaxAttempts != 0 {
		t.Errorf("single-attempt step should not record attempts: %+v", final)
	}
	if final.Reason != "exit code 1" {
		t.Errorf("Reason = %q", final.Reason)
	}

	if result.Status != core.StatusFailed || result.FailedStep != "Planner - Approve PO" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Skipped) != 3 || result.Skipped[0].Name != "Mobile - Goods Receipt" {
		t.Errorf("Skipped = %v", result.Skipped)
	}
}

func TestRun_ScenarioC_RetriesExhausted(t *testing.T) {
	h := newHarness(t)
	h.exec.script("Mobile - Goods Receipt", false, false, false)

	_, err := h.orchestrator().Run(flow.PurchaseOrder())

	var flowErr *core.FlowError
	if !errors.As(err, &flowErr) {
		t.Fatalf("expected *core.FlowError, got %v", err)
	}
	if flowErr.Attempts != 3 || flowErr.MaxAttempts != 3 {
		t.Errorf("FlowError = %+v", flowErr)
	}
	if !strings.Contains(err.Error(), "3/3 attempts") {
		t.Errorf("error message = %q", err.Error())
	}

	if h.exec.calls["Mobile - Goods Receipt"] != 3 {
		t.Errorf("goods receipt invoked %d times, want 3", h.exec.calls["Mobile - Goods Receipt"])
	}
	if h.exec.calls["Legacy - Bill Passing"] != 0 || h.exec.calls["Planner - RM Quality Check"] != 0 {
		t.Error("steps after goods receipt must not run")
	}

	final, _ := h.store.last()
	want := state.FlowState{Status: core.StatusFailed, Step: "Mobile - Goods Receipt", Attempt: 3, MaxAttempts: 3}
	if final.Status != want.Status || final.Step != want.Step || final.Attempt != 3 || final.MaxAttempts != 3 {
		t.Errorf("final state = %+v, want %+v", final, want)
	}

	// No delay after the last attempt
	if len(h.waiter.waits) != 3 {
		t.Errorf("waits = %v, want propagation + 2 delays", h.waiter.waits)
	}
}

func TestRun_StrictOrder(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orchestrator().Run(flow.PurchaseOrder()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"exec Planner - Create PO",
		"exec Planner - Approve PO",
		"wait 1m0s",
		"exec Mobile - Goods Receipt",
		"exec Planner - RM Quality Check",
		"exec Legacy - Bill Passing",
	}
	if strings.Join(*h.log, "\n") != strings.Join(want, "\n") {
		t.Errorf("events:\n%s\nwant:\n%s", strings.Join(*h.log, "\n"), strings.Join(want, "\n"))
	}
}

func TestRunWithRetry_SingleAttemptBoundary(t *testing.T) {
	h := newHarness(t)
	h.exec.script("flaky", false)

	steps := []flow.Step{
		{ID: "flaky", Name: "flaky", Command: "exit 1", Retry: &flow.RetryPolicy{MaxAttempts: 1, Delay: time.Minute}},
	}
	_, err := h.orchestrator().Run(steps)
	if err == nil {
		t.Fatal("expected failure")
	}

	if h.exec.calls["flaky"] != 1 {
		t.Errorf("invoked %d times, want 1", h.exec.calls["flaky"])
	}
	if len(h.waiter.waits) != 0 {
		t.Errorf("no delay expected, got %v", h.waiter.waits)
	}

	final, _ := h.store.last()
	if final.Attempt != 1 || final.MaxAttempts != 1 || final.Status != core.StatusFailed {
		t.Errorf("final state = %+v", final)
	}
}

func TestRunWithRetry_FirstSuccessStops(t *testing.T) {
	h := newHarness(t)

	steps := []flow.Step{
		{ID: "flaky", Name: "flaky", Command: "true", Retry: &flow.RetryPolicy{MaxAttempts: 5, Delay: time.Second}},
	}
	result, err := h.orchestrator().Run(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.exec.calls["flaky"] != 1 {
		t.Errorf("invoked %d times, want 1", h.exec.calls["flaky"])
	}
	if len(h.waiter.waits) != 0 {
		t.Errorf("no delay expected, got %v", h.waiter.waits)
	}
	if result.Steps[0].Flaky {
		t.Error("first-attempt pass is not flaky")
	}
}

func TestRunWithRetry_StateSequence(t *testing.T) {
	h := newHarness(t)
	h.exec.script("flaky", false, true)

	steps := []flow.Step{
		{ID: "flaky", Name: "flaky", Command: "x", Retry: &flow.RetryPolicy{MaxAttempts: 3}},
	}
	if _, err := h.orchestrator().Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, w := range h.store.writes {
		got = append(got, fmt.Sprintf("%s %d/%d", w.Status, w.Attempt, w.MaxAttempts))
	}
	want := []string{"running 1/3", "failed 1/3", "running 2/3", "passed 0/0"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("writes = %v, want %v", got, want)
	}
}

func TestRun_StateWriteFailure(t *testing.T) {
	tests := []struct {
		name      string
		failAt    int
		wantCalls int
	}{
		{"before first attempt", 1, 0},
		{"before second step", 2, 1},
		{"final passed record", 6, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.failAt = tt.failAt

			steps := flow.PurchaseOrder()
			steps[2].WaitBefore = 0
			steps[2].Retry = nil

			result, err := h.orchestrator().Run(steps)
			if !errors.Is(err, core.ErrStateWrite) {
				t.Fatalf("expected ErrStateWrite, got %v", err)
			}
			if h.exec.total() != tt.wantCalls {
				t.Errorf("invocations = %d, want %d", h.exec.total(), tt.wantCalls)
			}
			if result.Status != core.StatusFailed {
				t.Errorf("Status = %s, want failed", result.Status)
			}
		})
	}
}

func TestRun_ThreadsPONumber(t *testing.T) {
	h := newHarness(t)
	rt := &fakeRuntime{values: map[string]string{}}
	h.exec.script("Planner - Create PO", true)

	o := New(&poPublisher{inner: h.exec, rt: rt}, h.store, Config{Waiter: h.waiter, Runtime: rt})
	result, err := o.Run(flow.PurchaseOrder()[:2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.store.writes[0].PONumber != "" {
		t.Error("PO number unknown before create-po ran")
	}
	if h.store.writes[1].PONumber != "PO-1001" {
		t.Errorf("approve-po record PONumber = %q", h.store.writes[1].PONumber)
	}
	if result.PONumber != "PO-1001" {
		t.Errorf("result PONumber = %q", result.PONumber)
	}
	if h.store.writes[0].RunID == "" || h.store.writes[0].RunID != o.RunID() {
		t.Error("every record carries the generated run id")
	}
}

// poPublisher simulates create-po writing the PO number to runtime data.
type poPublisher struct {
	inner Executor
	rt    *fakeRuntime
}

func (p *poPublisher) Run(name, command string) core.Result {
	r := p.inner.Run(name, command)
	if name == "Planner - Create PO" {
		p.rt.values["poNumber"] = "PO-1001"
	}
	return r
}

type recordingObserver struct {
	log *events
}

func (o *recordingObserver) FlowStart(runID string, steps []flow.Step) {
	o.log.add("flow start %d", len(steps))
}

func (o *recordingObserver) Waiting(step flow.Step, reason string, d time.Duration) {
	o.log.add("waiting %s", d)
}

func (o *recordingObserver) StepStart(step flow.Step, index, total int) {
	o.log.add("step start %d/%d", index+1, total)
}

func (o *recordingObserver) AttemptEnd(step flow.Step, a core.Attempt, maxAttempts int) {
	o.log.add("attempt %d/%d ok=%v", a.Number, maxAttempts, a.Result.OK)
}

func (o *recordingObserver) StepEnd(step flow.Step, outcome core.StepOutcome) {
	o.log.add("step end %s", outcome.Status)
}

func (o *recordingObserver) FlowEnd(result *RunResult) {
	o.log.add("flow end %s", result.Status)
}

func TestRun_ObserverEvents(t *testing.T) {
	h := newHarness(t)
	h.exec.script("flaky", false, true)
	obsLog := &events{}

	steps := []flow.Step{
		{ID: "web", Name: "web", Command: "true"},
		{ID: "flaky", Name: "flaky", Command: "x", WaitBefore: time.Second, Retry: &flow.RetryPolicy{MaxAttempts: 2, Delay: 2 * time.Second}},
	}
	if _, err := h.orchestrator(&recordingObserver{log: obsLog}, NopObserver{}).Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"flow start 2",
		"step start 1/2",
		"attempt 1/1 ok=true",
		"step end passed",
		"waiting 1s",
		"step start 2/2",
		"attempt 1/2 ok=false",
		"waiting 2s",
		"attempt 2/2 ok=true",
		"step end passed",
		"flow end passed",
	}
	if strings.Join(*obsLog, "\n") != strings.Join(want, "\n") {
		t.Errorf("events:\n%s\nwant:\n%s", strings.Join(*obsLog, "\n"), strings.Join(want, "\n"))
	}
}

func TestNew_Defaults(t *testing.T) {
	o := New(&scriptedExecutor{}, &recordingStore{}, Config{})
	if o.RunID() == "" {
		t.Error("expected generated run id")
	}
	if _, ok := o.config.Waiter.(FixedWait); !ok {
		t.Errorf("default waiter = %T, want FixedWait", o.config.Waiter)
	}
}

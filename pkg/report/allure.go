// Package report writes machine-readable results of a flow run: Allure
// results for the QA dashboard and a JSON summary for CI.
package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/executor"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
)

// AllureDir is the results directory created under the output directory.
const AllureDir = "allure-results"

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	Parameters    []AllureParameter   `json:"parameters"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureParameter is a name/value shown next to a result.
type AllureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor identifies what produced the results.
type AllureExecutor struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	BuildName string `json:"buildName"`
}

// Environment is reported in environment.properties.
type Environment struct {
	Platform      string `json:"platform"`
	Device        string `json:"device"`
	ExecutionMode string `json:"executionMode"`
	CI            bool   `json:"ci"`
}

// AllureWriter collects step results during a run and writes them to
// <dir>/allure-results when the flow ends.
type AllureWriter struct {
	executor.NopObserver

	dir   string
	env   Environment
	runID string

	current *AllureResult
	results []AllureResult
	err     error
}

// NewAllureWriter creates a writer for the given output directory.
func NewAllureWriter(outputDir string, env Environment) *AllureWriter {
	return &AllureWriter{
		dir: filepath.Join(outputDir, AllureDir),
		env: env,
	}
}

// Dir returns the allure-results directory.
func (w *AllureWriter) Dir() string {
	return w.dir
}

// Err returns the error from writing results, if any.
func (w *AllureWriter) Err() error {
	return w.err
}

// FlowStart resets collected results.
func (w *AllureWriter) FlowStart(runID string, _ []flow.Step) {
	w.runID = runID
	w.results = nil
	w.current = nil
	w.err = nil
}

// StepStart opens a result for step.
func (w *AllureWriter) StepStart(step flow.Step, _, _ int) {
	r := newAllureResult(step, w.runID)
	r.Stage = "running"
	r.Start = time.Now().UnixMilli()
	w.current = &r
}

// AttemptEnd records an attempt as a nested step.
func (w *AllureWriter) AttemptEnd(_ flow.Step, a core.Attempt, maxAttempts int) {
	if w.current == nil {
		return
	}
	start := a.StartTime.UnixMilli()
	s := AllureStep{
		Name:   fmt.Sprintf("Attempt %d/%d", a.Number, maxAttempts),
		Status: mapAllureStatus(a.Result.OK),
		Stage:  "finished",
		Start:  start,
		Stop:   start + a.Result.Duration.Milliseconds(),
		Steps:  []AllureStep{},
	}
	if !a.Result.OK {
		s.StatusDetails.Message = a.Result.Reason
	}
	w.current.Steps = append(w.current.Steps, s)
}

// StepEnd closes the current result.
func (w *AllureWriter) StepEnd(_ flow.Step, outcome core.StepOutcome) {
	if w.current == nil {
		return
	}
	r := w.current
	r.Stage = "finished"
	r.Status = mapAllureStatus(outcome.Status == core.StatusPassed)
	r.Start = outcome.StartTime.UnixMilli()
	r.Stop = outcome.StartTime.Add(outcome.Duration).UnixMilli()
	r.StatusDetails.Message = outcome.Reason
	r.Parameters = append(r.Parameters, AllureParameter{
		Name:  "attempts",
		Value: fmt.Sprintf("%d/%d", outcome.Attempts, outcome.MaxAttempts),
	})
	if outcome.Flaky {
		r.Labels = append(r.Labels, AllureLabel{Name: "tag", Value: "flaky"})
	}

	w.results = append(w.results, *r)
	w.current = nil
}

// FlowEnd adds skipped steps and writes all files.
func (w *AllureWriter) FlowEnd(result *executor.RunResult) {
	stop := result.StartTime.Add(result.Duration).UnixMilli()
	for _, step := range result.Skipped {
		r := newAllureResult(step, w.runID)
		r.Status = "skipped"
		r.Start = stop
		r.Stop = stop
		if result.FailedStep != "" {
			r.StatusDetails.Message = "not run: " + result.FailedStep + " failed"
		}
		w.results = append(w.results, r)
	}

	if err := w.write(); err != nil {
		logger.Warn("allure results not written: %v", err)
		w.err = err
	}
}

func (w *AllureWriter) write() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	for _, r := range w.results {
		if err := writeJSON(filepath.Join(w.dir, r.UUID+"-result.json"), r); err != nil {
			return fmt.Errorf("write allure result %s: %w", r.Name, err)
		}
	}

	if err := writeAllureCategories(w.dir); err != nil {
		return err
	}
	if err := writeAllureEnvironment(w.dir, w.env, w.runID); err != nil {
		return err
	}
	return writeAllureExecutor(w.dir, w.runID)
}

func newAllureResult(step flow.Step, runID string) AllureResult {
	labels := []AllureLabel{
		{Name: "parentSuite", Value: "E2E Business Flow"},
		{Name: "suite", Value: "Purchase Order"},
		{Name: "framework", Value: "bizflow"},
		{Name: "severity", Value: "critical"},
	}
	if step.Platform != "" {
		labels = append(labels, AllureLabel{Name: "feature", Value: string(step.Platform)})
	}
	if runID != "" {
		labels = append(labels, AllureLabel{Name: "thread", Value: runID})
	}

	return AllureResult{
		UUID:       uuid.NewString(),
		HistoryID:  fnv32aHash("purchase-order:" + step.ID),
		FullName:   "Purchase Order: " + step.Name,
		Name:       step.Name,
		Labels:     labels,
		Parameters: []AllureParameter{},
		Steps:      []AllureStep{},
	}
}

func mapAllureStatus(ok bool) string {
	if ok {
		return "passed"
	}
	return "failed"
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// writeAllureCategories writes categories.json for failure categorization.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Command Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "exit code 127"},
		{Name: "Command Not Started", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*no such file.*|.*permission denied.*|.*executable file not found.*"},
		{Name: "Killed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*signal.*"},
		{Name: "Test Failure", MatchedStatuses: []string{"failed"}, MessageRegex: "exit code [0-9]+"},
		{Name: "Not Run", MatchedStatuses: []string{"skipped"}, MessageRegex: "not run: .*"},
	}

	if err := writeJSON(filepath.Join(allureDir, "categories.json"), categories); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with the device and
// execution context of the run.
func writeAllureEnvironment(allureDir string, env Environment, runID string) error {
	var b strings.Builder
	b.WriteString("Platform=" + orDash(env.Platform) + "\n")
	b.WriteString("Device=" + orDash(env.Device) + "\n")
	b.WriteString("Execution Mode=" + orDash(env.ExecutionMode) + "\n")
	b.WriteString(fmt.Sprintf("CI=%t\n", env.CI))
	if runID != "" {
		b.WriteString("Run ID=" + runID + "\n")
	}

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}

// writeAllureExecutor writes executor.json.
func writeAllureExecutor(allureDir, runID string) error {
	exec := AllureExecutor{
		Name:      "bizflow",
		Type:      "bizflow",
		BuildName: runID,
	}
	if err := writeJSON(filepath.Join(allureDir, "executor.json"), exec); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

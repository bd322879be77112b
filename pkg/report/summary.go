package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/executor"
)

// SummaryFile is the JSON run summary written to the output directory.
const SummaryFile = "report.json"

// Version is the summary schema version.
const Version = "1.0.0"

// Summary is the machine-readable outcome of one run.
type Summary struct {
	Version    string          `json:"version"`
	RunID      string          `json:"runId"`
	Status     core.FlowStatus `json:"status"`
	StartTime  time.Time       `json:"startTime"`
	EndTime    time.Time       `json:"endTime"`
	DurationMs int64           `json:"durationMs"`
	PONumber   string          `json:"poNumber,omitempty"`
	FailedStep string          `json:"failedStep,omitempty"`
	Error      string          `json:"error,omitempty"`
	Device     Environment     `json:"device"`
	Counts     Counts          `json:"counts"`
	Steps      []StepEntry     `json:"steps"`
}

// Counts aggregates step results.
type Counts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Flaky   int `json:"flaky"`
}

// StepEntry is one step in the summary.
type StepEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"maxAttempts"`
	DurationMs  int64  `json:"durationMs"`
	Reason      string `json:"reason,omitempty"`
	Flaky       bool   `json:"flaky,omitempty"`
}

// BuildSummary converts a run result into a Summary.
func BuildSummary(result *executor.RunResult, env Environment) Summary {
	s := Summary{
		Version:    Version,
		RunID:      result.RunID,
		Status:     result.Status,
		StartTime:  result.StartTime,
		EndTime:    result.StartTime.Add(result.Duration),
		DurationMs: result.Duration.Milliseconds(),
		PONumber:   result.PONumber,
		FailedStep: result.FailedStep,
		Device:     env,
		Counts:     Counts{Total: result.TotalSteps},
		Steps:      make([]StepEntry, 0, result.TotalSteps),
	}
	if result.Err != nil {
		s.Error = result.Err.Error()
	}

	for _, o := range result.Steps {
		s.Steps = append(s.Steps, StepEntry{
			ID:          o.ID,
			Name:        o.Name,
			Status:      string(o.Status),
			Attempts:    o.Attempts,
			MaxAttempts: o.MaxAttempts,
			DurationMs:  o.Duration.Milliseconds(),
			Reason:      o.Reason,
			Flaky:       o.Flaky,
		})
		switch o.Status {
		case core.StatusPassed:
			s.Counts.Passed++
		case core.StatusFailed:
			s.Counts.Failed++
		}
		if o.Flaky {
			s.Counts.Flaky++
		}
	}

	for _, step := range result.Skipped {
		s.Steps = append(s.Steps, StepEntry{
			ID:          step.ID,
			Name:        step.Name,
			Status:      "skipped",
			MaxAttempts: step.MaxAttempts(),
		})
		s.Counts.Skipped++
	}

	return s
}

// WriteSummary writes report.json into outputDir.
func WriteSummary(outputDir string, s Summary) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeJSON(filepath.Join(outputDir, SummaryFile), s); err != nil {
		return fmt.Errorf("write %s: %w", SummaryFile, err)
	}
	return nil
}

// ReadSummary loads report.json from outputDir.
func ReadSummary(outputDir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, SummaryFile)) //#nosec G304 -- configured output path
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SummaryFile, err)
	}
	return &s, nil
}

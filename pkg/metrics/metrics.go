// Package metrics exports flow run metrics in the Prometheus text format so
// CI agents with a node-exporter textfile collector can scrape them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/executor"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
)

const namespace = "bizflow"

// Attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder collects step and flow metrics as an executor.Observer.
type Recorder struct {
	executor.NopObserver

	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	waitSeconds  *prometheus.CounterVec
	flowPassed   prometheus.Gauge
	lastRun      prometheus.Gauge
}

// NewRecorder creates a Recorder registered on its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Step command invocations by result.",
		}, []string{"step", "result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of a step including retry delays.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"step"}),
		waitSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_seconds_total",
			Help:      "Seconds spent in fixed waits before or between attempts.",
		}, []string{"step"}),
		flowPassed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_passed",
			Help:      "1 if the last flow run passed, 0 otherwise.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_last_run_timestamp_seconds",
			Help:      "Unix time the last flow run finished.",
		}),
	}

	r.registry.MustRegister(r.attempts, r.stepDuration, r.waitSeconds, r.flowPassed, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// AttemptEnd counts one invocation.
func (r *Recorder) AttemptEnd(step flow.Step, a core.Attempt, _ int) {
	result := ResultSuccess
	if !a.Result.OK {
		result = ResultFailure
	}
	r.attempts.WithLabelValues(step.ID, result).Inc()
}

// Waiting accumulates wait time.
func (r *Recorder) Waiting(step flow.Step, _ string, d time.Duration) {
	r.waitSeconds.WithLabelValues(step.ID).Add(d.Seconds())
}

// StepEnd observes the step duration.
func (r *Recorder) StepEnd(step flow.Step, outcome core.StepOutcome) {
	r.stepDuration.WithLabelValues(step.ID).Observe(outcome.Duration.Seconds())
}

// FlowEnd sets the flow gauges.
func (r *Recorder) FlowEnd(result *executor.RunResult) {
	if result.Status == core.StatusPassed {
		r.flowPassed.Set(1)
	} else {
		r.flowPassed.Set(0)
	}
	r.lastRun.Set(float64(result.StartTime.Add(result.Duration).Unix()))
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

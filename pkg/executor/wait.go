package executor

import (
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
)

// Waiter blocks for a fixed duration. Used for the propagation wait before
// a step and for the delay between retry attempts.
type Waiter interface {
	Wait(reason string, d time.Duration)
}

// FixedWait sleeps for exactly the requested duration. It is not
// cancellable.
type FixedWait struct{}

// Wait sleeps for d. Zero or negative durations return immediately.
func (FixedWait) Wait(reason string, d time.Duration) {
	if d <= 0 {
		return
	}
	logger.Info("waiting %s: %s", d, reason)
	time.Sleep(d)
}

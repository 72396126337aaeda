package health

import (
	"fmt"
	"time"
)

// Constants for health states
const (
	DefaultMaxFailures = 5

	StateNormal   = "normal"
	StateDegraded = "degraded"
	StateFailed   = "failed"
)

// Health tracks consecutive failed cycles of the tracking loop
type Health struct {
	MaxFailures     int
	Failures        int
	TotalFailures   int
	LastFailure     time.Time
	LastFailureErr  error
	LastSuccessTime time.Time
	State           string
}

// New creates a new Health instance. maxFailures <= 0 uses DefaultMaxFailures.
func New(maxFailures int) *Health {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Health{
		MaxFailures: maxFailures,
		State:       StateNormal,
	}
}

// MarkSuccess clears the consecutive failure count
func (h *Health) MarkSuccess(now time.Time) {
	h.Failures = 0
	h.LastFailureErr = nil
	h.LastSuccessTime = now
	h.State = StateNormal
}

// MarkFailure records a failed cycle and returns the resulting state
func (h *Health) MarkFailure(now time.Time, err error) string {
	h.Failures++
	h.TotalFailures++
	h.LastFailure = now
	h.LastFailureErr = err

	if h.Failures >= h.MaxFailures {
		h.State = StateFailed
	} else {
		h.State = StateDegraded
	}
	return h.State
}

// IsTerminal returns true once the failure limit is reached
func (h *Health) IsTerminal() bool {
	return h.State == StateFailed
}

// String returns a string representation of the health
func (h *Health) String() string {
	return fmt.Sprintf("Health{State: %s, Failures: %d/%d, Total: %d}",
		h.State, h.Failures, h.MaxFailures, h.TotalFailures)
}

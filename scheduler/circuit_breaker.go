package scheduler

import "time"

// CircuitBreaker halts the scheduler after sustained failure, adapted
// from the CircuitBreaker shape in strategy_api.go: a critical error
// halts immediately, otherwise a sliding window of recent errors is
// compared against a threshold.
type CircuitBreaker struct {
	ErrorWindow    time.Duration
	ErrorThreshold int

	lastErrors            []time.Time
	criticalErrorOccurred bool

	now func() time.Time // overridable in tests
}

// NewCircuitBreaker returns a breaker with a real wall clock.
func NewCircuitBreaker(window time.Duration, threshold int) *CircuitBreaker {
	return &CircuitBreaker{ErrorWindow: window, ErrorThreshold: threshold, now: time.Now}
}

func (cb *CircuitBreaker) clock() time.Time {
	if cb.now != nil {
		return cb.now()
	}
	return time.Now()
}

// RecordError records an error occurrence and reports whether the
// scheduler should halt. critical=true halts unconditionally; otherwise
// halting is threshold-based over ErrorWindow.
func (cb *CircuitBreaker) RecordError(err error, critical bool) bool {
	if critical {
		cb.criticalErrorOccurred = true
		return true
	}

	now := cb.clock()
	cutoff := now.Add(-cb.ErrorWindow)
	kept := cb.lastErrors[:0]
	for _, t := range cb.lastErrors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	cb.lastErrors = kept

	return len(cb.lastErrors) >= cb.ErrorThreshold
}

// Reset clears the breaker's state, called after a successful batch.
func (cb *CircuitBreaker) Reset() {
	cb.lastErrors = nil
	cb.criticalErrorOccurred = false
}

// ErrorRate returns the current error rate in errors per hour.
func (cb *CircuitBreaker) ErrorRate() float64 {
	if len(cb.lastErrors) == 0 || cb.ErrorWindow <= 0 {
		return 0
	}
	return float64(len(cb.lastErrors)) / cb.ErrorWindow.Hours()
}

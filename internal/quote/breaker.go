package quote

import (
	"sync"
	"time"
)

// CircuitState is the breaker's position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreaker tracks the outcome of recent logical fetches in a rolling
// window and trips once the failure rate over a full window crosses the
// threshold. While open every call is rejected without touching the source.
// After the cooldown a single trial call probes the source: success closes
// the breaker and resets the window, failure reopens it with a doubled
// cooldown (capped at 8x the base). A trial abandoned without a verdict
// frees the permit for the next caller.
type CircuitBreaker struct {
	mu           sync.Mutex
	source       string
	state        CircuitState
	window       []bool // true marks a failed fetch
	next         int
	filled       int
	threshold    float64
	baseCooldown time.Duration
	cooldown     time.Duration
	openedAt     time.Time
	trialBusy    bool
}

// NewCircuitBreaker creates a closed breaker for the named source.
func NewCircuitBreaker(source string, windowSize int, threshold float64, cooldown time.Duration) *CircuitBreaker {
	if windowSize < 1 {
		windowSize = 1
	}
	return &CircuitBreaker{
		source:       source,
		state:        CircuitClosed,
		window:       make([]bool, windowSize),
		threshold:    threshold,
		baseCooldown: cooldown,
		cooldown:     cooldown,
	}
}

// Allow reports whether a fetch may proceed. While open it returns a
// ServiceUnavailableError carrying the remaining cooldown; the first call
// after the cooldown elapses becomes the half-open trial.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitOpen:
		remaining := b.cooldown - time.Since(b.openedAt)
		if remaining > 0 {
			return &ServiceUnavailableError{Source: b.source, RetryAfter: remaining}
		}
		b.state = CircuitHalfOpen
		b.trialBusy = true
		return nil
	case CircuitHalfOpen:
		if b.trialBusy {
			return &ServiceUnavailableError{Source: b.source, RetryAfter: b.cooldown}
		}
		b.trialBusy = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess feeds one successful logical fetch into the window.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitClosed
		b.reset()
	case CircuitClosed:
		b.record(false)
	}
	// results landing while open belong to calls admitted earlier; ignored
}

// RecordFailure feeds one failed logical fetch into the window.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case CircuitHalfOpen:
		b.trip(min(b.cooldown*2, 8*b.baseCooldown))
	case CircuitClosed:
		b.record(true)
	}
}

// CancelTrial releases the half-open trial permit when the trial ended
// without a verdict, usually because the caller's context was cancelled.
// The next Allow claims a fresh trial.
func (b *CircuitBreaker) CancelTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.trialBusy = false
	}
}

// record pushes one outcome and trips the breaker once a full window
// crosses the threshold, whichever outcome completed it.
func (b *CircuitBreaker) record(failed bool) {
	b.push(failed)
	if b.filled == len(b.window) && b.failureRate() > b.threshold {
		b.trip(b.baseCooldown)
	}
}

// State returns the breaker's current position.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) push(failed bool) {
	b.window[b.next] = failed
	b.next = (b.next + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
}

func (b *CircuitBreaker) failureRate() float64 {
	failures := 0
	for _, failed := range b.window[:b.filled] {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(b.filled)
}

func (b *CircuitBreaker) trip(cooldown time.Duration) {
	b.state = CircuitOpen
	b.openedAt = time.Now()
	b.cooldown = cooldown
	b.trialBusy = false
}

func (b *CircuitBreaker) reset() {
	for i := range b.window {
		b.window[i] = false
	}
	b.next = 0
	b.filled = 0
	b.cooldown = b.baseCooldown
	b.trialBusy = false
}

package llm

import "sync"

// BreakerConfig configures the pause policy driven by consecutive LLM
// failures, per §4.8.
type BreakerConfig struct {
	MaxConsecutiveFailures int
	PauseOnCriticalError   bool
}

// DefaultBreakerConfig mirrors §4.8's stated defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxConsecutiveFailures: 3, PauseOnCriticalError: true}
}

// Breaker tracks a consecutive-failure counter across LLM calls and decides
// whether the engine should pause. It is safe for concurrent use, since LLM
// calls complete on background goroutines per §5.
type Breaker struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	streak int
}

// NewBreaker constructs a Breaker with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg}
}

// RecordSuccess resets the consecutive-failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak = 0
}

// RecordFailure increments the consecutive-failure counter and reports
// whether the engine should pause as a result of this failure: either the
// severity is critical and pauseOnCriticalError is enabled, or the streak
// has reached maxConsecutiveFailures.
func (b *Breaker) RecordFailure(severity Severity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streak++

	if severity == SeverityCritical && b.cfg.PauseOnCriticalError {
		return true
	}
	if b.cfg.MaxConsecutiveFailures > 0 && b.streak >= b.cfg.MaxConsecutiveFailures {
		return true
	}
	return false
}

// Streak returns the current consecutive-failure count, for diagnostics.
func (b *Breaker) Streak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streak
}

// Backoff computes the exponential back-off interval for the n-th
// consecutive decision failure: base * 2^min(n, cap).
func Backoff(base, n, cap int) int {
	shift := n
	if shift > cap {
		shift = cap
	}
	return base << uint(shift)
}

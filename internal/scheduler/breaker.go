package scheduler

import "time"

// Circuit breaker tuning. After FailureThreshold consecutive dispatch
// failures the worker sleeps before the next dispatch, for RecoveryDelay
// times the failure count, capped at MaxRecoveryDelay.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryDelay    time.Duration
	MaxRecoveryDelay time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 2,
		RecoveryDelay:    2 * time.Second,
		MaxRecoveryDelay: 10 * time.Second,
	}
}

// CircuitState is the observable breaker snapshot.
type CircuitState struct {
	ConsecutiveFailures int
	LastFailureAt       time.Time
}

// breaker is owned by the scheduler worker; it is mutated only between
// dispatches, never concurrently.
type breaker struct {
	cfg         BreakerConfig
	failures    int
	lastFailure time.Time
}

func (b *breaker) recordSuccess() {
	b.failures = 0
}

func (b *breaker) recordFailure(at time.Time) {
	b.failures++
	b.lastFailure = at
}

// delay returns how long to hold off the next dispatch, or zero while under
// the threshold. The triggering request's failure is already reported; this
// only slows down what comes after it.
func (b *breaker) delay() time.Duration {
	if b.cfg.FailureThreshold <= 0 || b.failures < b.cfg.FailureThreshold {
		return 0
	}
	d := b.cfg.RecoveryDelay * time.Duration(b.failures)
	if b.cfg.MaxRecoveryDelay > 0 && d > b.cfg.MaxRecoveryDelay {
		d = b.cfg.MaxRecoveryDelay
	}
	return d
}

func (b *breaker) state() CircuitState {
	return CircuitState{ConsecutiveFailures: b.failures, LastFailureAt: b.lastFailure}
}

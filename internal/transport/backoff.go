package transport

import (
	"math/rand"
	"time"
)

// BackoffConfig shapes the delay between executor retry attempts. The delay
// grows linearly with the attempt number: the serial adapter recovers on its
// own given a little quiet time, and exponential growth just wastes it.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// RetryDelay returns the delay to sleep after failed attempt N (1-based),
// before attempt N+1.
func RetryDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.InitialDelay * time.Duration(attempt)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = time.Duration(float64(delay) * f)
	}
	return delay
}

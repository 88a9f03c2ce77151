package transport

import (
	"testing"
	"time"

	"github.com/knoxav/chamctl/internal/testutil/testlog"
)

func TestRetryDelayLinearGrowth(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
	if got := RetryDelay(cfg, 1, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := RetryDelay(cfg, 2, nil); got != time.Second {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := RetryDelay(cfg, 3, nil); got != 1500*time.Millisecond {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := RetryDelay(cfg, 10, nil); got != 2*time.Second {
		t.Fatalf("attempt10 should cap, got=%v", got)
	}
}

func TestRetryDelayZeroInitial(t *testing.T) {
	testlog.Start(t)
	if got := RetryDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Fatalf("want zero delay, got=%v", got)
	}
}

func TestRetryDelayJitterBounded(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	// nil rng pins the jitter factor at 0.5
	if got := RetryDelay(cfg, 2, nil); got != time.Second {
		t.Fatalf("pinned jitter got=%v", got)
	}
}

// Package refresh runs the background state poll: the canonical LOW-priority
// consumer of the command scheduler.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/knoxav/chamctl/internal/client"
	"github.com/knoxav/chamctl/internal/config"
	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/observability"
)

// ZoneFetcher is the façade surface the loop consumes.
type ZoneFetcher interface {
	AllZoneStates(ctx context.Context, zones []int) (map[int]client.ZoneState, error)
}

// Introspector exposes the scheduler's HIGH-pending signal.
type Introspector interface {
	HighPending() bool
}

// Loop polls the configured zones on an interval and keeps the latest
// snapshot. When a user command is already waiting it can sit a cycle out;
// the scheduler preempts correctly regardless, this just keeps the LOW queue
// from growing while a human is interacting.
type Loop struct {
	fetcher ZoneFetcher
	sched   Introspector
	cfg     config.RefreshConfig
	log     zerolog.Logger

	mu     sync.RWMutex
	last   map[int]client.ZoneState
	lastAt time.Time
}

func New(fetcher ZoneFetcher, sched Introspector, cfg config.RefreshConfig) *Loop {
	return &Loop{
		fetcher: fetcher,
		sched:   sched,
		cfg:     cfg,
		log:     logging.Nop(),
	}
}

func (l *Loop) SetLogger(log zerolog.Logger) {
	l.log = log
}

// Run polls until ctx is cancelled. The first cycle fires immediately.
func (l *Loop) Run(ctx context.Context) {
	if len(l.cfg.Zones) == 0 {
		l.log.Info().Msg("refresh loop idle, no zones configured")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(l.cfg.Interval.Std())
	defer ticker.Stop()

	l.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

// Snapshot returns the last completed poll and when it finished.
func (l *Loop) Snapshot() (map[int]client.ZoneState, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	states := make(map[int]client.ZoneState, len(l.last))
	for zone, st := range l.last {
		states[zone] = st
	}
	return states, l.lastAt
}

func (l *Loop) cycle(ctx context.Context) {
	if l.cfg.SkipWhenBusy && l.sched.HighPending() {
		l.log.Debug().Msg("refresh cycle skipped, user command pending")
		observability.RecordRefreshCycle("skipped")
		return
	}

	start := time.Now()
	states, err := l.fetcher.AllZoneStates(ctx, l.cfg.Zones)
	if err != nil {
		l.log.Warn().Err(err).Msg("refresh cycle failed")
		observability.RecordRefreshCycle("failed")
		return
	}

	l.mu.Lock()
	l.last = states
	l.lastAt = time.Now()
	l.mu.Unlock()

	observability.RecordRefreshCycle("ok")
	l.log.Debug().
		Int("zones", len(states)).
		Dur("took", time.Since(start)).
		Msg("refresh cycle complete")
}

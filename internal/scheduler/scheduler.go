package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/observability"
)

var (
	ErrStopped   = errors.New("scheduler: stopped")
	ErrQueueFull = errors.New("scheduler: queue full")
)

// ExecuteFunc performs the blocking I/O for one command. The worker is the
// only caller, so invocations are strictly serialized.
type ExecuteFunc func(ctx context.Context, command string, traceID uint64) (string, error)

type Config struct {
	// QueueCap bounds each priority queue. Zero means DefaultQueueCap.
	QueueCap int
	Breaker  BreakerConfig
}

const DefaultQueueCap = 100

func DefaultConfig() Config {
	return Config{
		QueueCap: DefaultQueueCap,
		Breaker:  DefaultBreakerConfig(),
	}
}

// Scheduler is the sole arbiter of device access. It owns two FIFO queues and
// a single worker goroutine: at every dispatch opportunity the HIGH queue is
// checked before LOW, so a HIGH request waits at most for the one command
// already in flight, no matter how deep the LOW backlog is.
//
// Serialization is structural: one worker, one in-flight command. There is no
// lock around a shared connection to contend on.
type Scheduler struct {
	exec ExecuteFunc
	cfg  Config
	log  zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	high    []*Request
	low     []*Request
	running bool
	current *Request
	brk     breaker

	stopCh     chan struct{}
	workerDone chan struct{}
}

func New(exec ExecuteFunc, cfg Config) *Scheduler {
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = DefaultQueueCap
	}
	s := &Scheduler{
		exec: exec,
		cfg:  cfg,
		log:  logging.Nop(),
		brk:  breaker{cfg: cfg.Breaker},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Scheduler) SetLogger(log zerolog.Logger) {
	s.log = log
}

// Start launches the worker. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.workerDone = make(chan struct{})
	go s.run()
	s.log.Info().Msg("scheduler started")
}

// Stop halts the worker and resolves every queued request with ErrStopped.
// A request already dispatched completes or times out under the executor's
// own bounded timeout; Stop waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	pending := make([]*Request, 0, len(s.high)+len(s.low))
	pending = append(pending, s.high...)
	pending = append(pending, s.low...)
	s.high = nil
	s.low = nil
	close(s.stopCh)
	s.cond.Broadcast()
	done := s.workerDone
	s.mu.Unlock()

	for _, req := range pending {
		req.resolve("", fmt.Errorf("%w: request cancelled", ErrStopped))
	}
	<-done
	s.publishDepths()
	s.log.Info().Int("cancelled", len(pending)).Msg("scheduler stopped")
}

// Submit enqueues a command and blocks until its result slot is resolved.
func (s *Scheduler) Submit(ctx context.Context, command string, priority Priority) (string, error) {
	req := newRequest(command, priority)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return "", ErrStopped
	}
	var depth int
	if priority == PriorityHigh {
		if len(s.high) >= s.cfg.QueueCap {
			s.mu.Unlock()
			return "", fmt.Errorf("%w: HIGH at %d", ErrQueueFull, s.cfg.QueueCap)
		}
		s.high = append(s.high, req)
		depth = len(s.high)
	} else {
		if len(s.low) >= s.cfg.QueueCap {
			s.mu.Unlock()
			return "", fmt.Errorf("%w: LOW at %d", ErrQueueFull, s.cfg.QueueCap)
		}
		s.low = append(s.low, req)
		depth = len(s.low)
	}
	s.cond.Signal()
	s.mu.Unlock()

	s.publishDepths()
	s.log.Debug().
		Uint64("trace", req.TraceID).
		Str("cmd", command).
		Stringer("prio", priority).
		Int("queue_depth", depth).
		Msg("command submitted")

	return req.wait(ctx)
}

// Depths reports the pending request count per priority queue.
func (s *Scheduler) Depths() (high, low int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.high), len(s.low)
}

// HighPending reports whether any HIGH request is waiting. The refresh loop
// uses it to voluntarily skip a cycle instead of contending.
func (s *Scheduler) HighPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.high) > 0
}

// Current returns the command currently in flight, if any.
func (s *Scheduler) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.Command, true
}

// CircuitState returns a snapshot of the breaker.
func (s *Scheduler) CircuitState() CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brk.state()
}

func (s *Scheduler) run() {
	defer close(s.workerDone)
	for {
		req := s.next()
		if req == nil {
			return
		}
		s.dispatch(req)

		if delay := s.breakerDelay(); delay > 0 {
			s.log.Warn().
				Dur("delay", delay).
				Int("failures", s.CircuitState().ConsecutiveFailures).
				Msg("circuit breaker holding off next dispatch")
			select {
			case <-s.stopCh:
			case <-time.After(delay):
			}
		}
	}
}

// next pops the oldest HIGH request, or the oldest LOW request only when HIGH
// is empty, blocking while both queues are empty. The preference is
// re-evaluated here on every call, after every completed command, which is
// what bounds a HIGH arrival's wait to the single in-flight command.
func (s *Scheduler) next() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running && len(s.high) == 0 && len(s.low) == 0 {
		s.cond.Wait()
	}
	if !s.running {
		return nil
	}
	var req *Request
	if len(s.high) > 0 {
		req = s.high[0]
		s.high = s.high[1:]
	} else {
		req = s.low[0]
		s.low = s.low[1:]
	}
	s.current = req
	return req
}

func (s *Scheduler) dispatch(req *Request) {
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		s.publishDepths()
	}()

	queueWait := time.Since(req.QueuedAt)
	ioStart := time.Now()
	result, err := s.exec(context.Background(), req.Command, req.TraceID)
	ioDur := time.Since(ioStart)

	if err != nil {
		s.mu.Lock()
		s.brk.recordFailure(time.Now())
		failures := s.brk.failures
		s.mu.Unlock()
		observability.RecordCommand(req.Priority.String(), false, ioDur)
		observability.SetBreakerFailures(failures)
		s.log.Error().
			Uint64("trace", req.TraceID).
			Str("cmd", req.Command).
			Stringer("prio", req.Priority).
			Dur("queue_wait", queueWait).
			Dur("io", ioDur).
			Err(err).
			Msg("command failed")
		req.resolve("", err)
		return
	}

	s.mu.Lock()
	s.brk.recordSuccess()
	highPending := len(s.high)
	s.mu.Unlock()
	observability.RecordCommand(req.Priority.String(), true, ioDur)
	observability.SetBreakerFailures(0)
	s.log.Debug().
		Uint64("trace", req.TraceID).
		Str("cmd", req.Command).
		Stringer("prio", req.Priority).
		Dur("queue_wait", queueWait).
		Dur("io", ioDur).
		Int("high_pending", highPending).
		Msg("command complete")
	if req.Priority == PriorityHigh && queueWait > time.Second {
		s.log.Warn().
			Uint64("trace", req.TraceID).
			Dur("queue_wait", queueWait).
			Msg("HIGH command waited more than a second")
	}
	req.resolve(result, nil)
}

func (s *Scheduler) breakerDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return s.brk.delay()
}

func (s *Scheduler) publishDepths() {
	high, low := s.Depths()
	observability.SetQueueDepths(high, low)
}

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Priority classifies why a command was issued, not what it does. User
// actions are HIGH; the background refresh loop is the only bulk reader, so
// all reads are LOW.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityLow
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "HIGH"
	}
	return "LOW"
}

var traceCounter atomic.Uint64

// Request is one submission unit: a wire command, its priority class, and a
// single-resolution result slot. The worker resolves it exactly once, either
// with the raw response or a terminal error; it is never reused.
type Request struct {
	Command  string
	Priority Priority
	TraceID  uint64
	QueuedAt time.Time

	resolveOnce sync.Once
	result      string
	err         error
	done        chan struct{}
}

func newRequest(command string, priority Priority) *Request {
	return &Request{
		Command:  command,
		Priority: priority,
		TraceID:  traceCounter.Add(1),
		QueuedAt: time.Now(),
		done:     make(chan struct{}),
	}
}

func (r *Request) resolve(result string, err error) {
	r.resolveOnce.Do(func() {
		r.result = result
		r.err = err
		close(r.done)
	})
}

// wait blocks the submitting caller until the result slot is written. A
// cancelled context releases the caller; the request itself still runs to
// resolution under the worker's ownership.
func (r *Request) wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

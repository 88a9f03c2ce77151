package transport

import "errors"

var (
	// ErrConnection marks a socket-level failure: dial, write, or a peer
	// close before any response arrived.
	ErrConnection = errors.New("transport: connection error")

	// ErrTimeout marks a command that produced no complete response within
	// the overall per-attempt timeout.
	ErrTimeout = errors.New("transport: command timed out")
)

package protocol

import "errors"

var (
	// ErrInvalidArgument marks a validation failure caught before any I/O.
	ErrInvalidArgument = errors.New("protocol: invalid argument")

	// ErrProtocol marks a response that cannot be parsed at all.
	ErrProtocol = errors.New("protocol: malformed response")

	// ErrCommandFailed marks an explicit ERROR reply from the device. The
	// device understood and rejected the command, so it is never retried.
	ErrCommandFailed = errors.New("protocol: command rejected by device")
)

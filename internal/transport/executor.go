package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/protocol"
)

// Executor connection and framing configuration.
type Config struct {
	Host string
	Port int

	// Timeout covers one attempt end to end: connect, drain, send, and
	// read-to-completion.
	Timeout    time.Duration
	MaxRetries int

	// DrainDelay is the grace period after connect before flushing the
	// unsolicited bytes the serial adapter emits on a fresh connection.
	DrainDelay time.Duration

	// ReadInterval is the per-read deadline inside the accumulate loop. The
	// adapter sends bursts with multi-second gaps, so individual reads time
	// out routinely while the overall attempt is still healthy.
	ReadInterval time.Duration

	// TrailingDelay is how long to wait for stray bytes after a DONE/ERROR
	// terminator before closing the socket.
	TrailingDelay time.Duration

	// QuietPeriod is the idle threshold that completes an unterminated
	// response: VTB queries answer with a single line and no DONE.
	QuietPeriod time.Duration

	// SettleDelay is the pause after closing the socket; the adapter needs
	// time to clear its buffers before the next connection.
	SettleDelay time.Duration

	Retry BackoffConfig
}

// Executor defaults tuned against the HF2211A serial adapter.
func DefaultConfig() Config {
	return Config{
		Port:          8899,
		Timeout:       3 * time.Second,
		MaxRetries:    3,
		DrainDelay:    200 * time.Millisecond,
		ReadInterval:  200 * time.Millisecond,
		TrailingDelay: 50 * time.Millisecond,
		QuietPeriod:   time.Second,
		SettleDelay:   100 * time.Millisecond,
		Retry: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("transport: config missing host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("transport: invalid port %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("transport: timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("transport: max retries must be at least 1")
	}
	return nil
}

// Executor performs the I/O for exactly one command at a time. The adapter
// contaminates responses across commands on a reused socket, so every command
// dials a fresh TCP connection and closes it on every exit path. Executor
// holds no connection state; multiple device instances can coexist.
type Executor struct {
	cfg  Config
	addr string
	log  zerolog.Logger
}

func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		log:  logging.Nop(),
	}, nil
}

func (e *Executor) SetLogger(log zerolog.Logger) {
	e.log = log
}

// Execute sends one command and returns the raw response text. Transport
// failures are retried up to the configured bound with a linearly increasing
// delay; the last error surfaces as terminal.
func (e *Executor) Execute(ctx context.Context, command string, traceID uint64) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		raw, err := e.attempt(ctx, command)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		e.log.Warn().
			Uint64("trace", traceID).
			Str("cmd", command).
			Int("attempt", attempt).
			Err(err).
			Msg("command attempt failed")

		if attempt < e.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(RetryDelay(e.cfg.Retry, attempt, nil)):
			}
		}
	}
	return "", fmt.Errorf("command %q failed after %d attempts: %w", command, e.cfg.MaxRetries, lastErr)
}

func (e *Executor) attempt(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: e.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrConnection, e.addr, err)
	}
	defer conn.Close()

	e.drain(conn)

	if err := conn.SetWriteDeadline(time.Now().Add(e.cfg.Timeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if _, err := conn.Write([]byte(command + "\r")); err != nil {
		return "", fmt.Errorf("%w: write: %v", ErrConnection, err)
	}

	raw, err := e.readResponse(conn, command)
	if err != nil {
		return "", err
	}

	conn.Close()
	time.Sleep(e.cfg.SettleDelay)
	return raw, nil
}

// drain discards the initialization bytes the adapter pushes right after
// connect. Short deadlines only; nothing arriving is the normal case.
func (e *Executor) drain(conn net.Conn) {
	time.Sleep(e.cfg.DrainDelay)
	buf := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			e.log.Debug().Int("bytes", n).Msg("flushed adapter noise after connect")
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// readResponse accumulates until a DONE/ERROR terminator appears or, for
// unterminated query types, the line is complete and the link has been quiet
// long enough. No bytes at all within the overall timeout is ErrTimeout.
func (e *Executor) readResponse(conn net.Conn, command string) (string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	start := time.Now()
	lastData := start
	idleFramed := protocol.IsVTBQuery(command)

	for time.Since(start) < e.cfg.Timeout {
		_ = conn.SetReadDeadline(time.Now().Add(e.cfg.ReadInterval))
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			lastData = time.Now()
			if protocol.HasTerminator(buf.String()) {
				e.collectTrailing(conn, &buf, chunk)
				break
			}
		}
		if err == nil {
			continue
		}

		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			if buf.Len() == 0 {
				continue
			}
			s := buf.String()
			if protocol.HasTerminator(s) {
				break
			}
			if idleFramed && responseLooksComplete(s) && time.Since(lastData) >= e.cfg.QuietPeriod {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			if buf.Len() > 0 {
				break
			}
			return "", fmt.Errorf("%w: connection closed before response", ErrConnection)
		}
		return "", fmt.Errorf("%w: read: %v", ErrConnection, err)
	}

	if buf.Len() == 0 {
		return "", fmt.Errorf("%w: no response to %q within %s", ErrTimeout, command, e.cfg.Timeout)
	}
	return strings.TrimSpace(buf.String()), nil
}

// collectTrailing waits briefly after a terminator for stray bytes so they do
// not leak into the next command's connection.
func (e *Executor) collectTrailing(conn net.Conn, buf *bytes.Buffer, chunk []byte) {
	time.Sleep(e.cfg.TrailingDelay)
	_ = conn.SetReadDeadline(time.Now().Add(e.cfg.TrailingDelay))
	if n, _ := conn.Read(chunk); n > 0 {
		buf.Write(chunk[:n])
	}
}

// responseLooksComplete guards the idle heuristic: the accumulated text must
// end in a line terminator and be long enough to hold a full VTB report.
func responseLooksComplete(s string) bool {
	return strings.HasSuffix(s, "\n") && len(s) > 20
}

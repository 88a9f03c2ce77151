package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/protocol"
	"github.com/knoxav/chamctl/internal/scheduler"
)

// Submitter is the scheduler surface the client needs. Tests substitute a
// scripted fake.
type Submitter interface {
	Submit(ctx context.Context, command string, priority scheduler.Priority) (string, error)
}

// VolumeFallbackFunc maps a zone to the volume substituted when the device
// reports one outside 0-63. The default, min(zone, 40), is a field heuristic
// carried over from operating the hardware, not a protocol semantic; it is
// configurable for that reason, and nil disables substitution entirely.
type VolumeFallbackFunc func(zone int) int

func DefaultVolumeFallback(zone int) int {
	if zone < 40 {
		return zone
	}
	return 40
}

type Option func(*Client)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithVolumeFallback(fn VolumeFallbackFunc) Option {
	return func(c *Client) { c.fallback = fn }
}

// Client is the typed façade over the command scheduler. Writes are
// user-initiated mutations and submit HIGH; reads are refresh queries and
// submit LOW. All validation happens before anything is queued.
type Client struct {
	sched    Submitter
	log      zerolog.Logger
	fallback VolumeFallbackFunc
}

func New(sched Submitter, opts ...Option) *Client {
	c := &Client{
		sched:    sched,
		log:      logging.Nop(),
		fallback: DefaultVolumeFallback,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetInput routes both video and audio from input to zone.
func (c *Client) SetInput(ctx context.Context, zone, input int) error {
	cmd, err := protocol.SetInput(zone, input)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// SetVideoInput routes video only.
func (c *Client) SetVideoInput(ctx context.Context, zone, input int) error {
	cmd, err := protocol.SetVideoInput(zone, input)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// SetAudioInput routes audio only.
func (c *Client) SetAudioInput(ctx context.Context, zone, input int) error {
	cmd, err := protocol.SetAudioInput(zone, input)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// SetVolume sets the zone volume on the device's inverted 0-63 scale.
func (c *Client) SetVolume(ctx context.Context, zone, volume int) error {
	cmd, err := protocol.SetVolume(zone, volume)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// VolumeUp steps the zone louder.
func (c *Client) VolumeUp(ctx context.Context, zone, steps int) error {
	cmd, err := protocol.VolumeUp(zone, steps)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// VolumeDown steps the zone quieter.
func (c *Client) VolumeDown(ctx context.Context, zone, steps int) error {
	cmd, err := protocol.VolumeDown(zone, steps)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// SetMute sets the zone mute flag.
func (c *Client) SetMute(ctx context.Context, zone int, mute bool) error {
	cmd, err := protocol.SetMute(zone, mute)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// StorePattern saves the current routing to a pattern slot.
func (c *Client) StorePattern(ctx context.Context, pattern int) error {
	cmd, err := protocol.StorePattern(pattern)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// RecallPattern restores a stored routing pattern.
func (c *Client) RecallPattern(ctx context.Context, pattern int) error {
	cmd, err := protocol.RecallPattern(pattern)
	if err != nil {
		return err
	}
	return c.write(ctx, cmd)
}

// GetInput returns the current input routed to zone, or nil when the device
// reports nothing parseable for it.
func (c *Client) GetInput(ctx context.Context, zone int) (*int, error) {
	cmd, err := protocol.QueryCrosspoint(zone)
	if err != nil {
		return nil, err
	}
	result, err := c.read(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !result.Success || result.Data == "" {
		c.log.Warn().Int("zone", zone).Msg("no crosspoint data for zone")
		return nil, nil
	}
	if cp, ok := protocol.ParseCrosspoints(result.Data)[zone]; ok {
		input := cp.Video
		return &input, nil
	}
	return nil, nil
}

// GetVolume returns the zone volume, or nil when the device reports none or
// an out-of-range value. No fallback is substituted here; see ZoneState.
func (c *Client) GetVolume(ctx context.Context, zone int) (*int, error) {
	vtb, err := c.queryVTB(ctx, zone)
	if err != nil {
		return nil, err
	}
	if vtb.Volume == nil {
		return nil, nil
	}
	if *vtb.Volume < protocol.MinVolume || *vtb.Volume > protocol.MaxVolume {
		c.log.Debug().Int("zone", zone).Int("volume", *vtb.Volume).
			Msg("device reported out-of-range volume, zone likely unconfigured")
		return nil, nil
	}
	return vtb.Volume, nil
}

// GetMute returns the zone mute flag, or nil when unreported. Unknown is not
// collapsed to false; display policy belongs to the consuming application.
func (c *Client) GetMute(ctx context.Context, zone int) (*bool, error) {
	vtb, err := c.queryVTB(ctx, zone)
	if err != nil {
		return nil, err
	}
	return vtb.Muted, nil
}

// AllCrosspoints returns the full routing table with one device command.
func (c *Client) AllCrosspoints(ctx context.Context) (map[int]protocol.Crosspoint, error) {
	result, err := c.read(ctx, protocol.QueryAllCrosspoints())
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", protocol.ErrCommandFailed, result.Detail)
	}
	return protocol.ParseCrosspoints(result.Data), nil
}

// FirmwareInfo returns the device signon text.
func (c *Client) FirmwareInfo(ctx context.Context) (string, error) {
	result, err := c.read(ctx, protocol.QueryFirmware())
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%w: %s", protocol.ErrCommandFailed, result.Detail)
	}
	return result.Data, nil
}

// write submits a mutation at HIGH priority and fails unless the device
// confirmed it. A failed write is never masked: the device did not apply the
// change.
func (c *Client) write(ctx context.Context, cmd string) error {
	raw, err := c.sched.Submit(ctx, cmd, scheduler.PriorityHigh)
	if err != nil {
		return err
	}
	result, err := protocol.ParseResponse(raw)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%w: %s: %s", protocol.ErrCommandFailed, cmd, result.Detail)
	}
	return nil
}

// read submits a query at LOW priority and frames the response. Transport
// errors surface; what the caller does with thin data is its own policy.
func (c *Client) read(ctx context.Context, cmd string) (protocol.Result, error) {
	raw, err := c.sched.Submit(ctx, cmd, scheduler.PriorityLow)
	if err != nil {
		return protocol.Result{}, err
	}
	return protocol.ParseResponse(raw)
}

func (c *Client) queryVTB(ctx context.Context, zone int) (protocol.VTB, error) {
	cmd, err := protocol.QueryVTB(zone)
	if err != nil {
		return protocol.VTB{}, err
	}
	result, err := c.read(ctx, cmd)
	if err != nil {
		return protocol.VTB{}, err
	}
	if !result.Success || result.Data == "" {
		return protocol.VTB{}, nil
	}
	return protocol.ParseVTB(result.Data), nil
}

package client

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/knoxav/chamctl/internal/protocol"
)

// ZoneState is the merged per-zone snapshot. Nil fields mean the device did
// not report a usable value; that is distinct from known-zero or known-false
// and callers must not collapse the two.
type ZoneState struct {
	Zone   int   `json:"zone"`
	Input  *int  `json:"input,omitempty"`
	Volume *int  `json:"volume,omitempty"`
	Muted  *bool `json:"muted,omitempty"`
}

// ZoneState fetches the full state of one zone: the VTB query for volume and
// mute plus the crosspoint query for input routing, merged.
func (c *Client) ZoneState(ctx context.Context, zone int) (ZoneState, error) {
	if err := protocol.ValidateZone(zone); err != nil {
		return ZoneState{}, err
	}

	state := ZoneState{Zone: zone}

	vtb, err := c.queryVTB(ctx, zone)
	if err != nil {
		return state, err
	}
	c.mergeVTB(&state, vtb)

	cmd, err := protocol.QueryCrosspoint(zone)
	if err != nil {
		return state, err
	}
	result, err := c.read(ctx, cmd)
	if err != nil {
		return state, err
	}
	if result.Success {
		if cp, ok := protocol.ParseCrosspoints(result.Data)[zone]; ok {
			input := cp.Video
			state.Input = &input
		}
	}
	return state, nil
}

// AllZoneStates fetches the state of many zones with N+1 device round trips
// instead of 2N: one crosspoint range query spanning all requested zones,
// plus one VTB query per zone. The VTB queries are submitted concurrently;
// the scheduler serializes actual device access.
func (c *Client) AllZoneStates(ctx context.Context, zones []int) (map[int]ZoneState, error) {
	if len(zones) == 0 {
		return map[int]ZoneState{}, nil
	}
	for _, zone := range zones {
		if err := protocol.ValidateZone(zone); err != nil {
			return nil, err
		}
	}

	first, last := zoneSpan(zones)
	rangeCmd, err := protocol.QueryCrosspointRange(first, last)
	if err != nil {
		return nil, err
	}

	var (
		crosspoints map[int]protocol.Crosspoint
		vtbs        = make([]protocol.VTB, len(zones))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := c.read(gctx, rangeCmd)
		if err != nil {
			return err
		}
		if result.Success {
			crosspoints = protocol.ParseCrosspoints(result.Data)
		}
		return nil
	})
	for i, zone := range zones {
		i, zone := i, zone
		g.Go(func() error {
			vtb, err := c.queryVTB(gctx, zone)
			if err != nil {
				return err
			}
			vtbs[i] = vtb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := make(map[int]ZoneState, len(zones))
	for i, zone := range zones {
		state := ZoneState{Zone: zone}
		c.mergeVTB(&state, vtbs[i])
		if cp, ok := crosspoints[zone]; ok {
			input := cp.Video
			state.Input = &input
		}
		states[zone] = state
	}
	return states, nil
}

// mergeVTB folds a VTB report into the state, applying the degraded-volume
// policy: a raw value outside 0-63 comes from an unconfigured zone, and a
// functioning physical zone must have some non-silent volume. The decoder
// surfaced the raw value; the substitution happens here, and only here.
func (c *Client) mergeVTB(state *ZoneState, vtb protocol.VTB) {
	state.Muted = vtb.Muted
	if vtb.Volume == nil {
		return
	}
	raw := *vtb.Volume
	if raw >= protocol.MinVolume && raw <= protocol.MaxVolume {
		state.Volume = vtb.Volume
		return
	}
	if c.fallback == nil {
		c.log.Debug().Int("zone", state.Zone).Int("volume", raw).
			Msg("out-of-range volume, fallback disabled, leaving unknown")
		return
	}
	fb := c.fallback(state.Zone)
	c.log.Debug().Int("zone", state.Zone).Int("volume", raw).Int("fallback", fb).
		Msg("out-of-range volume, substituting fallback")
	state.Volume = &fb
}

func zoneSpan(zones []int) (first, last int) {
	sorted := append([]int(nil), zones...)
	sort.Ints(sorted)
	return sorted[0], sorted[len(sorted)-1]
}

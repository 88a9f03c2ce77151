package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/knoxav/chamctl/internal/client"
	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/scheduler"
	"github.com/knoxav/chamctl/internal/transport"
)

var (
	deviceHost    string
	devicePort    int
	deviceTimeout time.Duration
)

// stack is the wired transport for one-shot commands: executor, scheduler,
// façade.
type stack struct {
	client *client.Client
	sched  *scheduler.Scheduler
}

func newStack() (*stack, error) {
	if strings.TrimSpace(deviceHost) == "" {
		return nil, fmt.Errorf("--host is required")
	}
	tcfg := transport.DefaultConfig()
	tcfg.Host = deviceHost
	tcfg.Port = devicePort
	if deviceTimeout > 0 {
		tcfg.Timeout = deviceTimeout
	}
	exec, err := transport.NewExecutor(tcfg)
	if err != nil {
		return nil, err
	}
	exec.SetLogger(logging.New("transport"))

	sched := scheduler.New(exec.Execute, scheduler.DefaultConfig())
	sched.SetLogger(logging.New("scheduler"))
	sched.Start()

	c := client.New(sched, client.WithLogger(logging.New("client")))
	return &stack{client: c, sched: sched}, nil
}

func (s *stack) close() {
	s.sched.Stop()
}

func newRouteCmd() *cobra.Command {
	var videoOnly, audioOnly bool
	cmd := &cobra.Command{
		Use:   "route <zone> <input>",
		Short: "Route an input to a zone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, input, err := twoInts(args)
			if err != nil {
				return err
			}
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			ctx := cmd.Context()
			switch {
			case videoOnly:
				err = st.client.SetVideoInput(ctx, zone, input)
			case audioOnly:
				err = st.client.SetAudioInput(ctx, zone, input)
			default:
				err = st.client.SetInput(ctx, zone, input)
			}
			if err != nil {
				return err
			}
			fmt.Printf("zone %d -> input %d\n", zone, input)
			return nil
		},
	}
	cmd.Flags().BoolVar(&videoOnly, "video", false, "route video only")
	cmd.Flags().BoolVar(&audioOnly, "audio", false, "route audio only")
	cmd.MarkFlagsMutuallyExclusive("video", "audio")
	return cmd
}

func newVolumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "volume <zone> <0-63|up|down>",
		Short: "Set or step a zone's volume (0=loudest, 63=quietest)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid zone %q", args[0])
			}
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			ctx := cmd.Context()
			switch args[1] {
			case "up":
				err = st.client.VolumeUp(ctx, zone, 1)
			case "down":
				err = st.client.VolumeDown(ctx, zone, 1)
			default:
				var level int
				level, err = strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid volume %q", args[1])
				}
				err = st.client.SetVolume(ctx, zone, level)
			}
			if err != nil {
				return err
			}
			fmt.Printf("zone %d volume %s\n", zone, args[1])
			return nil
		},
	}
}

func newMuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mute <zone> <on|off>",
		Short: "Mute or unmute a zone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid zone %q", args[0])
			}
			var mute bool
			switch args[1] {
			case "on":
				mute = true
			case "off":
				mute = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.client.SetMute(cmd.Context(), zone, mute); err != nil {
				return err
			}
			fmt.Printf("zone %d mute %s\n", zone, args[1])
			return nil
		},
	}
}

func newZoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zone <zone>",
		Short: "Show one zone's input, volume, and mute state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid zone %q", args[0])
			}
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			state, err := st.client.ZoneState(cmd.Context(), zone)
			if err != nil {
				return err
			}
			printZone(state)
			return nil
		},
	}
}

func newZonesCmd() *cobra.Command {
	var zoneList []int
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Show the state of many zones with minimal device round trips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(zoneList) == 0 {
				return fmt.Errorf("--zones is required")
			}
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			states, err := st.client.AllZoneStates(cmd.Context(), zoneList)
			if err != nil {
				return err
			}
			ordered := make([]int, 0, len(states))
			for zone := range states {
				ordered = append(ordered, zone)
			}
			sort.Ints(ordered)
			for _, zone := range ordered {
				printZone(states[zone])
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&zoneList, "zones", nil, "zones to query, e.g. 1,2,25")
	return cmd
}

func newPatternCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern <store|recall> <1-20>",
		Short: "Store or recall a crosspoint pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid pattern slot %q", args[1])
			}
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			ctx := cmd.Context()
			switch args[0] {
			case "store":
				err = st.client.StorePattern(ctx, slot)
			case "recall":
				err = st.client.RecallPattern(ctx, slot)
			default:
				return fmt.Errorf("expected store or recall, got %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("pattern %d %s\n", slot, args[0])
			return nil
		},
	}
	return cmd
}

func newMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map",
		Short: "Show the full crosspoint routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			cps, err := st.client.AllCrosspoints(cmd.Context())
			if err != nil {
				return err
			}
			ordered := make([]int, 0, len(cps))
			for zone := range cps {
				ordered = append(ordered, zone)
			}
			sort.Ints(ordered)
			for _, zone := range ordered {
				cp := cps[zone]
				fmt.Printf("zone %2d  video=%2d  audio=%2d\n", cp.Zone, cp.Video, cp.Audio)
			}
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the device signon and firmware revision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newStack()
			if err != nil {
				return err
			}
			defer st.close()

			info, err := st.client.FirmwareInfo(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(info)
			return nil
		},
	}
}

func printZone(state client.ZoneState) {
	input := "?"
	if state.Input != nil {
		input = strconv.Itoa(*state.Input)
	}
	volume := "?"
	if state.Volume != nil {
		volume = strconv.Itoa(*state.Volume)
	}
	muted := "?"
	if state.Muted != nil {
		muted = strconv.FormatBool(*state.Muted)
	}
	fmt.Printf("zone %2d  input=%s  volume=%s  muted=%s\n", state.Zone, input, volume, muted)
}

func twoInts(args []string) (int, int, error) {
	a, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid zone %q", args[0])
	}
	b, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid input %q", args[1])
	}
	return a, b, nil
}

package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/knoxav/chamctl/internal/logging"
)

const longHelp = `chamctl drives a Knox Chameleon64i audio/video matrix switcher over its
serial-to-Ethernet adapter.

Commands are sent over a serialized channel to the device, one at a time;
user actions always go ahead of background queries. Run "chamctl serve" for
the long-lived daemon with background refresh and the HTTP status API.`

const exampleUsage = `  chamctl --host 10.0.0.50 route 25 3
  chamctl --host 10.0.0.50 volume 25 32
  chamctl --host 10.0.0.50 mute 25 on
  chamctl serve --config /etc/chamctl/config.toml`

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	logging.ConfigureRuntime()

	root := &cobra.Command{
		Use:           "chamctl",
		Short:         "Control a Knox Chameleon64i A/V matrix switcher",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&deviceHost, "host", "", "device host or IP")
	root.PersistentFlags().IntVar(&devicePort, "port", 8899, "device TCP port")
	root.PersistentFlags().DurationVar(&deviceTimeout, "timeout", 0, "per-command timeout (0 = default)")

	root.AddCommand(
		newRouteCmd(),
		newVolumeCmd(),
		newMuteCmd(),
		newZoneCmd(),
		newZonesCmd(),
		newPatternCmd(),
		newMapCmd(),
		newInfoCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chamctl: %v\n", err)
		os.Exit(1)
	}
}

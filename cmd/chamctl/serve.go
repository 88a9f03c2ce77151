package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/knoxav/chamctl/internal/client"
	"github.com/knoxav/chamctl/internal/config"
	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/refresh"
	"github.com/knoxav/chamctl/internal/scheduler"
	"github.com/knoxav/chamctl/internal/server"
	"github.com/knoxav/chamctl/internal/transport"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the long-lived daemon: background refresh plus HTTP status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return fmt.Errorf("--config is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfgPath)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config.toml")
	return cmd
}

// serve runs the stack until the context is cancelled, rebuilding it whenever
// the config file changes on disk. Executor and scheduler settings only take
// effect through a rebuild, so a reload tears the old stack down after its
// in-flight command finishes.
func serve(ctx context.Context, cfgPath string) error {
	log := logging.New("serve")

	reloads := make(chan config.Config, 1)
	watcher := config.NewWatcher(cfgPath, func(cfg config.Config) {
		select {
		case reloads <- cfg:
		default:
		}
	})
	watcher.SetLogger(logging.New("config"))
	go watcher.Run(ctx)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	for {
		restart, err := runStack(ctx, cfg, reloads)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		cfg = <-reloads
		log.Info().Msg("restarting stack with reloaded config")
	}
}

// runStack wires and runs one generation of the stack. It returns restart =
// true when a config reload is pending.
func runStack(parent context.Context, cfg config.Config, reloads chan config.Config) (bool, error) {
	exec, err := transport.NewExecutor(cfg.TransportConfig())
	if err != nil {
		return false, err
	}
	exec.SetLogger(logging.New("transport"))

	sched := scheduler.New(exec.Execute, cfg.SchedulerConfig())
	sched.SetLogger(logging.New("scheduler"))
	sched.Start()
	defer sched.Stop()

	opts := []client.Option{client.WithLogger(logging.New("client"))}
	if cfg.VolumeFallbackCap < 0 {
		opts = append(opts, client.WithVolumeFallback(nil))
	} else {
		limit := cfg.VolumeFallbackCap
		opts = append(opts, client.WithVolumeFallback(func(zone int) int {
			if zone < limit {
				return zone
			}
			return limit
		}))
	}
	c := client.New(sched, opts...)

	loop := refresh.New(c, sched, cfg.Refresh)
	loop.SetLogger(logging.New("refresh"))

	api := server.New(cfg.Server, sched, loop)
	api.SetLogger(logging.New("server"))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	restart := false
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Refresh.Enabled {
		g.Go(func() error {
			loop.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return api.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case next := <-reloads:
			// put it back for the outer loop; if the watcher already
			// delivered a newer config, that one wins
			select {
			case reloads <- next:
			default:
			}
			restart = true
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		return false, err
	}
	return restart, nil
}

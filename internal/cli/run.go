package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/camwatch/camwatch/internal/config"
	"github.com/camwatch/camwatch/internal/log"
	"github.com/camwatch/camwatch/internal/reactor"
	"github.com/camwatch/camwatch/internal/shell"
	"github.com/camwatch/camwatch/internal/ws"
)

// sampleTimeoutFloor bounds how long one probe may hold its sampling tool,
// on top of twice the sampling duration.
const sampleTimeoutFloor = 10 * time.Second

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the target application until interrupted",
		Long: `Start the reactor: every poll interval camwatch samples the target for
camera and screen-sharing activity and counts its instances. Transitions
toggle Do Not Disturb and run the matching script. When the server is
enabled, status is also served over HTTP and websocket.

The config file is watched and reloaded on change or on SIGHUP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg, opts.configPath, shell.NewExecRunner())
		},
	}
}

// runDaemon wires every component and blocks until ctx is cancelled or the
// HTTP server fails.
func runDaemon(ctx context.Context, cfg *config.Config, configPath string, runner shell.Runner) error {
	logger := log.WithComponent("daemon")
	holder := config.NewHolder(cfg, configPath)
	comps := newComponents(cfg, runner)
	executor := newExecutor(cfg, holder, runner)

	reactorOpts := reactor.Options{
		Name:          cfg.Target.Name,
		Interval:      cfg.Monitor.PollInterval,
		SampleTimeout: sampleTimeout(cfg),
	}

	var (
		rx          *reactor.Reactor
		broadcaster *ws.Broadcaster
	)
	if cfg.Server.Enabled {
		broadcaster = ws.NewBroadcaster(reactor.InitialSnapshot(cfg.Target.Name), cfg.Monitor.BroadcastThrottle, cfg.Monitor.SnapshotInterval, cfg.Server.MaxConnections)
		defer broadcaster.Stop()
		rx = reactor.New(reactorOpts, comps.probes, executor, broadcaster)
	} else {
		rx = reactor.New(reactorOpts, comps.probes, executor, nil)
	}

	holder.OnReload(func(c *config.Config) {
		rx.SetInterval(c.Monitor.PollInterval)
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := holder.Watch(ctx); err != nil {
			logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("config watcher unavailable")
		}
		return nil
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				logger.Info().Str("event", "config.reload_signal").Msg("received SIGHUP, reloading config")
				_ = holder.Reload()
			}
		}
	})

	g.Go(func() error {
		select {
		case names := <-comps.shortcuts.ListAsync(ctx):
			logger.Info().Str("event", "shortcuts.listed").Int("count", len(names)).Msg("shortcuts enumerated")
			if broadcaster != nil {
				broadcaster.SetShortcuts(names)
			}
		case <-ctx.Done():
		}
		return nil
	})

	if broadcaster != nil {
		server := ws.NewServer(holder, rx, broadcaster)
		g.Go(func() error {
			return ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler())
		})
	}

	rx.Start()
	logger.Info().
		Str("event", "daemon.started").
		Str("target", cfg.Target.Name).
		Str("script_dir", cfg.ScriptDir()).
		Msg("camwatch running")

	<-ctx.Done()
	rx.Stop()
	err := g.Wait()

	rx.Drain()
	executor.Wait()
	logger.Info().Str("event", "daemon.stopped").Msg("camwatch stopped")
	return err
}

func sampleTimeout(cfg *config.Config) time.Duration {
	d := cfg.Target.Camera.Duration
	if s := cfg.Target.ScreenShare.Duration; s > d {
		d = s
	}
	return 2*d + sampleTimeoutFloor
}

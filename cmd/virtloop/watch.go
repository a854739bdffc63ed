package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jbweber/virtloop/internal/config"
	"github.com/jbweber/virtloop/internal/eventloop"
	"github.com/jbweber/virtloop/internal/watch"
)

var (
	watchDomains  []string
	watchEvents   []string
	statsInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch domain events",
	Long: `Watch events from libvirtd until interrupted.

Each event is printed as it arrives, with the phase it leaves the domain in.
Use --domain to limit domain events to specific domains, and --event to pick
event kinds (lifecycle, reboot, network-lifecycle, pool-lifecycle).

Output formats:
  -o table  One line per event (default)
  -o yaml   A stream of DomainEvent documents
  -o json   Newline-delimited DomainEvent JSON`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchDomains, "domain", nil, "only watch these domains (repeatable)")
	watchCmd.Flags().StringSliceVar(&watchEvents, "event", nil, "event kinds to watch (repeatable)")
	watchCmd.Flags().DurationVar(&statsInterval, "stats-interval", 0, "log event loop statistics at this interval (0 disables)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	w := cfg.Watch
	if cmd.Flags().Changed("domain") {
		w.Domains = watchDomains
	}
	if cmd.Flags().Changed("event") {
		w.Events = watchEvents
	}
	watchCfg := config.Config{Watch: w}
	watchCfg.Normalize()
	if err := watchCfg.Watch.Validate(); err != nil {
		return err
	}
	kinds, err := watchCfg.Watch.EventKinds()
	if err != nil {
		return err
	}

	formatter, err := newFormatter()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	watcher := watch.New(s.client, formatter, os.Stdout,
		watch.WithLogger(logger.With().Str("component", "watch").Logger()))
	if err := watcher.Start(watchCfg.Watch.Domains, kinds); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	if statsInterval > 0 {
		g.Go(func() error {
			reportStats(gctx, s.loop, statsInterval)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reportStats logs loop statistics until ctx is done.
func reportStats(ctx context.Context, loop *eventloop.Loop, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := loop.Stats()
			logger.Info().
				Int("handles", len(stats.Handles)).
				Int("timers", len(stats.Timers)).
				Int("pending", stats.Pending).
				Msg("event loop")
		}
	}
}

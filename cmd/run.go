package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lastsold-monitor/notify"
	"lastsold-monitor/scheduler"
)

var skipAnnounce bool

func init() {
	runCmd.Flags().BoolVar(&skipAnnounce, "quiet-start", false, "do not post the startup message")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every target on the configured interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		start := time.Now()
		logger.Info("=== TCGplayer last-sold monitor starting ===")
		logger.Info("Config: %d targets | every %s | concurrency %d | rate %dms | store %s",
			len(cfg.Targets), cfg.Interval(), cfg.MaxConcurrency, cfg.RateLimitMs, cfg.StoragePath)

		if !skipAnnounce {
			if err := a.notifier.Announce(ctx, notify.StartupMessage(a.cardNames(), cfg.Interval())); err != nil {
				logger.Warn("[run] Startup notification failed: %v", err)
			}
		}

		sched := scheduler.New(logger)
		if err := sched.AddJob(fmt.Sprintf("@every %ds", cfg.IntervalSeconds), a.poller); err != nil {
			return err
		}
		if cfg.GraphCapture.Enabled {
			if err := sched.AddJob(cfg.GraphCapture.Schedule, a.graphJob()); err != nil {
				return err
			}
		}

		// first cycle right away, then on schedule
		if err := sched.RunNow(ctx, a.poller); err != nil {
			logger.Warn("[run] First cycle had failures: %v", err)
		}
		sched.Start()

		<-ctx.Done()
		logger.Info("Shutdown requested, waiting for running cycles")
		sched.Stop()
		logger.Info("Monitor stopped after %s", time.Since(start).Round(time.Second))
		return nil
	},
}

package cmd

import (
	"context"
	"time"

	"lastsold-monitor/config"
	"lastsold-monitor/notify"
	"lastsold-monitor/scheduler"
	"lastsold-monitor/scraper/tcgplayer"
	"lastsold-monitor/services"
	"lastsold-monitor/storage"
	"lastsold-monitor/utils"
)

// app is the fully wired monitor.
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	store    *storage.Store
	fetcher  *tcgplayer.Fetcher
	notifier *notify.Multi
	engine   *services.Engine
	poller   *scheduler.Poller
}

func newApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	store, err := storage.Open(ctx, cfg.StoragePath, logger)
	if err != nil {
		return nil, err
	}

	var notifiers []notify.Notifier
	if d := notify.NewDiscord(cfg.WebhookURL, 10*time.Second); d != nil {
		notifiers = append(notifiers, d)
	}
	if cfg.Email.Enabled {
		notifiers = append(notifiers, notify.NewEmail(cfg.SMTP()))
	}
	multi := notify.NewMulti(notifiers...)
	if multi.Len() == 0 {
		logger.Warn("[app] No webhook or email configured, new sales will only be logged")
	}

	fetcher := tcgplayer.NewFetcher(cfg.FetcherConfig(), logger)
	engine := services.NewEngine(fetcher, tcgplayer.NewSegmenter(cfg.Selectors), store, multi, cfg.EngineConfig(), logger)
	poller := scheduler.NewPoller(engine, cfg.Targets, scheduler.PollerConfig{
		MaxConcurrency: cfg.MaxConcurrency,
		RateLimitMs:    cfg.RateLimitMs,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		fetcher:  fetcher,
		notifier: multi,
		engine:   engine,
		poller:   poller,
	}, nil
}

func (a *app) cardNames() []string {
	names := make([]string, 0, len(a.cfg.Targets))
	for _, t := range a.cfg.Targets {
		names = append(names, tcgplayer.CardNameFromURL(t))
	}
	return names
}

func (a *app) graphJob() *scheduler.GraphJob {
	var sender scheduler.ImageSender
	if d := notify.NewDiscord(a.cfg.GraphWebhookURL(), 30*time.Second); d != nil {
		sender = d
	}
	return scheduler.NewGraphJob(a.fetcher, sender, a.cfg.GraphCapture.Dir, a.cfg.Targets, a.logger)
}

// close persists the seen-set even if ctx was already cancelled.
func (a *app) close(ctx context.Context) error {
	a.fetcher.Close()
	err := a.store.Close(context.WithoutCancel(ctx))
	if err != nil {
		a.logger.Error("[app] Closing seen-set failed: %v", err)
	}
	return err
}

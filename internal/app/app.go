package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"exec-feed-sync/internal/api"
	"exec-feed-sync/internal/config"
	"exec-feed-sync/internal/engine"
	"exec-feed-sync/internal/feed"
	"exec-feed-sync/internal/metrics"
	"exec-feed-sync/internal/notify"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/scheduler"
	"exec-feed-sync/internal/upstream"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newUpstream() *upstream.Client {
	return upstream.NewClient(upstream.Options{
		BaseURL:   a.Config.Upstream.BaseURL,
		Timeout:   a.Config.Upstream.RequestTimeout,
		UserAgent: a.Config.Upstream.UserAgent,
	}, a.Logger)
}

func (a *App) newMonitor() *feed.Monitor {
	return feed.NewMonitor(feed.Options{
		URL: a.Config.Feed.URL,
		Backoff: feed.Backoff{
			Base: a.Config.Feed.BackoffBase,
			Cap:  a.Config.Feed.BackoffCap,
		},
		BufferSize: a.Config.Feed.BufferSize,
	}, a.Logger)
}

func (a *App) newNotifier() notify.Notifier {
	if !a.Config.Notify.Enabled {
		return nil
	}
	tg := a.Config.Notify.Telegram
	return notify.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger)
}

func (a *App) newEngine(fd engine.Feed, client *upstream.Client, m *metrics.Metrics) *engine.Engine {
	return engine.New(engine.Options{
		Feed:       fd,
		Source:     client,
		Remote:     client,
		PageSize:   a.Config.Upstream.PageSize,
		MaxRecords: a.Config.Cache.MaxRecords,
		MaxQuotes:  a.Config.Cache.MaxQuotes,
		MaxBars:    a.Config.Cache.MaxBars,
		MaxAlerts:  a.Config.Cache.MaxAlerts,
		Metrics:    m,

		Notifier:       a.newNotifier(),
		NotifySeverity: record.Severity(a.Config.Notify.MinSeverity),
	}, a.Logger)
}

// Run executes the long-running synchronization service: websocket feed,
// engine loop, and the dashboard API.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Feed.URL == "" {
		return errors.New("feed.url not configured")
	}
	if a.Config.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url not configured")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := a.newUpstream()
	monitor := a.newMonitor()
	m := metrics.New()
	eng := a.newEngine(monitor, client, m)
	defer eng.Close()

	monitor.Connect(ctx)
	defer monitor.Disconnect()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := eng.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		// Initial backfill of page one. Failures are retried by the
		// dashboard's load-more, so they only log here.
		if _, err := eng.LoadNext(gctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn().Err(err).Msg("initial page load failed")
		}
		if alerts, err := client.FetchAlerts(gctx); err == nil {
			eng.SeedAlerts(alerts)
		} else if !errors.Is(err, context.Canceled) {
			a.Logger.Warn().Err(err).Msg("initial alert fetch failed")
		}
		return nil
	})

	if a.Config.API.Enabled {
		srv := api.NewServer(api.Options{
			Addr:      a.Config.API.Listen,
			Dismisser: client,
		}, eng, m.Registry, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if interval := a.Config.Feed.RefreshInterval; interval > 0 {
		sched := scheduler.New(scheduler.Options{Interval: interval}, a.Logger)
		g.Go(func() error {
			err := sched.Run(gctx, func(ctx context.Context, _ time.Time) error {
				_, err := eng.Refresh(ctx)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	a.Logger.Info().Msg("starting synchronization service")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("synchronization service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit   int
	Account string
	Status  string
}

// ExportOptions hold parameters for exporting execution history.
type ExportOptions struct {
	From     *time.Time
	To       *time.Time
	Format   string
	OutPath  string
	MaxPages int
}

// SimulateOptions configure the synthetic feed run.
type SimulateOptions struct {
	Records int
	Format  string
	OutPath string
}

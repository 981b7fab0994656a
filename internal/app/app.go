package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fuel-price-tracker/internal/alerting"
	"fuel-price-tracker/internal/config"
	"fuel-price-tracker/internal/httpapi"
	"fuel-price-tracker/internal/metrics"
	"fuel-price-tracker/internal/scheduler"
	"fuel-price-tracker/internal/scraper"
	"fuel-price-tracker/internal/service"
	"fuel-price-tracker/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; nil means stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) newScraper() scraper.PriceScraper {
	return scraper.New(scraper.Options{
		URL:       a.Config.Scraper.URL,
		UserAgent: a.Config.Scraper.UserAgent,
		Timeout:   a.Config.Scraper.RequestTimeout,
		FuelTypes: a.Config.Scraper.FuelTypes,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.ObservationStore, error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	if a.Config.Database.Driver == config.DriverMemory {
		a.Logger.Warn().Msg("database.driver=memory; observations are lost on exit")
	}
	return store, nil
}

// newService opens the store and builds a service around it. The caller owns
// the returned store.
func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler, scr scraper.PriceScraper, m *metrics.Metrics) (*service.Service, storage.ObservationStore, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return service.New(a.Config, sched, scr, store, a.newNotifier(), m, a.Logger), store, nil
}

// Run serves the HTTP API and, when enabled, the scheduled scrape loop until
// SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sched *scheduler.Scheduler
	if a.Config.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Options{
			Interval:       a.Config.Scheduler.Interval,
			AlignToSlot:    a.Config.Scheduler.AlignToSlot,
			StartupDelay:   a.Config.Scheduler.StartupDelay,
			RunImmediately: a.Config.Scheduler.RunOnStart,
		}, a.Logger)
	}

	m := metrics.New()
	svc, store, err := a.newService(ctx, sched, a.newScraper(), m)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := httpapi.New(a.Config.HTTP, svc, m, a.Logger).HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	if sched != nil {
		g.Go(func() error {
			a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting scrape scheduler")
			return svc.Run(gctx)
		})
	} else {
		a.Logger.Warn().Msg("scheduler disabled; scrapes only run on demand")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("fuel price tracker stopped")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config.HTTP.ShutdownTimeout > 0 {
		return a.Config.HTTP.ShutdownTimeout
	}
	return 10 * time.Second
}

// ExportOptions hold parameters for exporting bucketed prices.
type ExportOptions struct {
	Interval  string
	Device    string
	Mode      string
	Cutoff    *time.Time
	FuelTypes []string
	PNGPath   string
	CSVPath   string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	FuelTypes []string
	Windows   []time.Duration
}

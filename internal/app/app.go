package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ApartmentHunter/internal/config"
	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/filter"
	"ApartmentHunter/internal/infrastructure/console"
	"ApartmentHunter/internal/infrastructure/fetch"
	"ApartmentHunter/internal/infrastructure/parser"
	"ApartmentHunter/internal/infrastructure/scheduler"
	"ApartmentHunter/internal/infrastructure/storage"
	"ApartmentHunter/internal/infrastructure/telegram"
	"ApartmentHunter/internal/logging"
	"ApartmentHunter/internal/metrics"
	"ApartmentHunter/internal/normalize"
	"ApartmentHunter/internal/ports"
	"ApartmentHunter/internal/scanner"
	"ApartmentHunter/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Repository
	registry  *scanner.Registry
	source    *parser.StrategySource
	fetcher   *fetch.HTTPFetcher
	engine    *filter.Engine
	notifiers []ports.Notifier
	metrics   *metrics.Metrics
	pipeline  *usecase.Pipeline
}

// New opens the store and builds every collaborator of the scan pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := scheduler.ValidateSpec(cfg.Scheduler.Spec()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := scanner.NewRegistry()
	registered := map[string]bool{}
	for _, site := range cfg.Sites {
		if registered[site.Scanner] {
			continue
		}
		switch site.Scanner {
		case "yad2":
			registry.Register(parser.NewYad2Extractor(site.BaseURL, baseLogger.With("component", "extractor.yad2")))
		default:
			_ = store.Close()
			return nil, fmt.Errorf("site %s: unknown scanner %q", site.Name, site.Scanner)
		}
		registered[site.Scanner] = true
	}

	notifiers := []ports.Notifier{console.NewNotifier(baseLogger.With("component", "notifier.console"))}
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifiers = append(notifiers, telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.Endpoint, tg.MessagesPerMinute))
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		registry: registry,
		source:   parser.NewStrategySource(cfg.Sites, cfg.Filters, baseLogger.With("component", "source")),
		fetcher: fetch.NewHTTPFetcher(nil, fetch.Options{
			Timeout:           cfg.Fetch.Timeout,
			MaxRetries:        cfg.Fetch.MaxRetries,
			RetryDelay:        cfg.Fetch.RetryDelay,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
			UserAgent:         cfg.Fetch.UserAgent,
		}, baseLogger.With("component", "fetcher")),
		engine:    filter.NewEngine(cfg.Filters),
		notifiers: notifiers,
		metrics:   metrics.New(),
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Targets:    a.source,
		Fetcher:    a.fetcher,
		Extractors: registry,
		Normalizer: normalize.New(cfg.Normalizer),
		Filter:     a.engine,
		Store:      store,
		Notifiers:  notifiers,
		Guard:      usecase.NewScanGuard(),
		Metrics:    a.metrics,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	return a, nil
}

// Scan runs exactly one cycle.
func (a *Application) Scan(ctx context.Context) (domain.ScanSession, error) {
	return a.pipeline.RunCycle(ctx)
}

// Run schedules cycles until ctx is cancelled. When metrics.addr is set, the
// Prometheus endpoint is served alongside.
func (a *Application) Run(ctx context.Context) error {
	var srv *http.Server
	errCh := make(chan error, 1)
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("metrics endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.Spec(), a.cfg.Scheduler.Location(), a.logger.With("component", "scheduler"))
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			a.logger.Warn("metrics server did not stop cleanly", "error", err)
		}
	}
	return runErr
}

// Status returns the store summary plus the most recent passing listings.
func (a *Application) Status(ctx context.Context, recent int) (domain.StatusSummary, []domain.Listing, error) {
	summary, err := a.store.StatusSummary(ctx, time.Now())
	if err != nil {
		return domain.StatusSummary{}, nil, err
	}
	listings, err := a.store.RecentListings(ctx, recent, true)
	if err != nil {
		return domain.StatusSummary{}, nil, err
	}
	return summary, listings, nil
}

// Purge removes listings not seen within olderThan.
func (a *Application) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("purge window must be positive, got %s", olderThan)
	}
	n, err := a.store.Purge(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	a.logger.Info("listings purged", "deleted", n, "older_than", olderThan)
	return n, nil
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}

package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fx-signal-alerts/internal/alerting"
	"fx-signal-alerts/internal/config"
	"fx-signal-alerts/internal/fetcher"
	"fx-signal-alerts/internal/history"
	"fx-signal-alerts/internal/registry"
	"fx-signal-alerts/internal/risk"
	"fx-signal-alerts/internal/scheduler"
	"fx-signal-alerts/internal/server"
	"fx-signal-alerts/internal/service"
	"fx-signal-alerts/internal/storage"
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

func (a *App) newAggregator() *fetcher.Aggregator {
	providers := make([]fetcher.Provider, 0, len(a.Config.Fetcher.Providers))
	for _, p := range a.Config.Fetcher.Providers {
		providers = append(providers, fetcher.NewHTTPProvider(fetcher.ProviderOptions{
			Name:      p.Name,
			URL:       p.URL,
			Reference: a.Config.Fetcher.Reference,
			Timeout:   a.Config.Fetcher.RequestTimeout,
			UserAgent: a.Config.Fetcher.UserAgent,
		}, a.Logger))
	}
	return fetcher.NewAggregator(providers, a.Config.Fetcher.Reference, a.Logger)
}

func (a *App) newSender() alerting.Sender {
	if !a.Config.PushEnabled() {
		a.Logger.Warn().Msg("vapid keys not configured; notifications will be logged, not delivered")
		return logSender{logger: a.Logger}
	}

	webpush := a.Config.Alerting.WebPush
	return alerting.NewWebPushSender(alerting.WebPushOptions{
		VAPIDPublicKey:  webpush.PublicKey,
		VAPIDPrivateKey: webpush.PrivateKey,
		Subscriber:      webpush.Subscriber,
		TTL:             webpush.TTL,
		Timeout:         a.Config.Alerting.DeliveryTimeout,
	}, a.Logger)
}

// logSender stands in when no VAPID key pair is configured.
type logSender struct {
	logger zerolog.Logger
}

func (s logSender) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	s.logger.Info().Str("subscriber", sub.SubscriberID).RawJSON("payload", payload).Msg("notification (delivery disabled)")
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running signal engine and its HTTP surface.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var persistence registry.Persistence
	var sampleStore storage.RateSampleStore
	if store != nil {
		persistence = store
		sampleStore = store
	}

	reg := registry.New(persistence, a.Logger)
	reg.Load(ctx)

	sender := a.newSender()
	dispatcher := alerting.NewDispatcher(sender, reg, a.Config.Alerting.DeliveryTimeout, a.Logger)
	evaluator := alerting.NewEvaluator(reg, dispatcher, a.Config.Alerting.VolatilityPct, a.Logger)

	settings := risk.NewSettingsStore(a.Config.Risk)

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	engine := service.New(
		sched,
		a.newAggregator(),
		history.NewStore(a.Config.History.Cap),
		reg,
		evaluator,
		sampleStore,
		settings,
		a.Config.Pairs,
		a.Logger,
	)

	handler := server.NewHandler(reg, engine, dispatcher, settings, a.Config.Pairs, a.Config.Alerting.WebPush.PublicKey, a.Logger)
	srv := server.New(a.Config.Server.ListenAddr(), handler, a.Logger)
	srv.Start()

	a.Logger.Info().Int("pairs", len(a.Config.Pairs)).Msg("starting signal engine")
	err = engine.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if stopErr := srv.Stop(stopCtx); stopErr != nil {
		a.Logger.Error().Err(stopErr).Msg("http server shutdown failed")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("signal engine stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	PairID    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	PairID string
	Limit  int
}

// SimulateOptions configure the offline simulation run.
type SimulateOptions struct {
	Cycles int
	Seed   int64
}

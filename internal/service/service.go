// Package service orchestrates the evaluation cycle: acquire a snapshot,
// derive each pair, score signals, evaluate alerts, then commit pruning and
// persistence once the whole cycle is done.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-signal-alerts/internal/alerting"
	"fx-signal-alerts/internal/history"
	"fx-signal-alerts/internal/metrics"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
	"fx-signal-alerts/internal/risk"
	"fx-signal-alerts/internal/scheduler"
	"fx-signal-alerts/internal/signal"
	"fx-signal-alerts/internal/storage"
)

// SnapshotFetcher acquires one normalized snapshot per cycle.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (rates.Snapshot, error)
}

// PairStatus is the retained outcome of the latest cycle for one pair.
// ChangePct is tick-over-tick; WindowChangePct spans the whole retained
// history window.
type PairStatus struct {
	Pair            rates.PairSpec  `json:"pair"`
	Rate            float64         `json:"rate"`
	ChangePct       float64         `json:"changePct"`
	WindowChangePct float64         `json:"windowChangePct"`
	Source          string          `json:"source"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Analysis        signal.Analysis `json:"analysis"`
}

// Engine drives the fetch-score-alert loop over the configured pairs.
type Engine struct {
	scheduler *scheduler.Scheduler
	fetcher   SnapshotFetcher
	history   *history.Store
	reg       *registry.Registry
	evaluator *alerting.Evaluator
	store     storage.RateSampleStore
	settings  *risk.SettingsStore
	pairs     []rates.PairSpec
	logger    zerolog.Logger

	mu        sync.RWMutex
	latest    map[string]PairStatus
	lastCycle time.Time
	startedAt time.Time
}

// New constructs the engine. store may be nil for in-memory operation.
func New(
	sched *scheduler.Scheduler,
	snapshots SnapshotFetcher,
	hist *history.Store,
	reg *registry.Registry,
	evaluator *alerting.Evaluator,
	store storage.RateSampleStore,
	settings *risk.SettingsStore,
	pairs []rates.PairSpec,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		scheduler: sched,
		fetcher:   snapshots,
		history:   hist,
		reg:       reg,
		evaluator: evaluator,
		store:     store,
		settings:  settings,
		pairs:     pairs,
		logger:    logger.With().Str("component", "engine").Logger(),
		latest:    make(map[string]PairStatus),
		startedAt: time.Now().UTC(),
	}
}

// Run executes one immediate cycle, then follows the scheduler cadence until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if err := e.RunCycle(ctx, time.Now().UTC()); err != nil {
		e.logger.Error().Err(err).Msg("initial cycle failed")
	}

	return e.scheduler.Run(ctx, e.RunCycle)
}

// RunCycle performs one full evaluation cycle. Per-pair work runs to
// completion before the prune of dead endpoints is committed, so a pair can
// never observe a half-pruned subscription set mid-cycle.
func (e *Engine) RunCycle(ctx context.Context, bucket time.Time) error {
	snap, err := e.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	metrics.SnapshotsFetched.WithLabelValues(snap.Source).Inc()

	var dead []string
	for _, pair := range e.pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		dead = append(dead, e.processPair(ctx, bucket, pair, snap)...)
	}

	if pruned := e.reg.Prune(ctx, dead); pruned > 0 {
		metrics.EndpointsPruned.Add(float64(pruned))
	}

	e.mu.Lock()
	e.lastCycle = time.Now().UTC()
	e.mu.Unlock()

	metrics.CyclesTotal.Inc()
	e.logger.Info().
		Str("source", snap.Source).
		Int("pairs", len(e.pairs)).
		Int("pruned", len(dead)).
		Msg("cycle complete")
	return nil
}

func (e *Engine) processPair(ctx context.Context, bucket time.Time, pair rates.PairSpec, snap rates.Snapshot) []string {
	rate, ok := rates.Derive(pair, snap)
	if !ok {
		e.logger.Warn().Str("pair", pair.ID).Str("source", snap.Source).Msg("pair not derivable from snapshot, skipping")
		return nil
	}

	current, _ := rate.Float64()
	prev, hasPrev := e.history.Last(pair.ID)

	e.history.Append(pair.ID, history.PricePoint{Rate: current, Timestamp: snap.FetchedAt})
	series := e.history.Read(pair.ID)
	analysis := signal.Score(series, pair, e.settings.Get())

	changePct := 0.0
	if hasPrev {
		changePct = rates.PercentChange(prev.Rate, current)
	}
	windowChangePct := rates.PercentChange(series[0].Rate, current)

	dead := e.evaluator.Evaluate(ctx, pair, prev.Rate, hasPrev, current)

	metrics.PairRate.WithLabelValues(pair.ID).Set(current)

	e.mu.Lock()
	e.latest[pair.ID] = PairStatus{
		Pair:            pair,
		Rate:            current,
		ChangePct:       changePct,
		WindowChangePct: windowChangePct,
		Source:          snap.Source,
		UpdatedAt:       snap.FetchedAt,
		Analysis:        analysis,
	}
	e.mu.Unlock()

	if e.store != nil {
		sample := storage.RateSample{
			PairID:    pair.ID,
			Bucket:    bucket,
			Rate:      rate,
			ChangePct: decimal.NewFromFloat(changePct),
			Source:    snap.Source,
		}
		if err := e.store.UpsertRateSample(ctx, sample); err != nil {
			e.logger.Error().Err(err).Str("pair", pair.ID).Msg("failed to persist sample")
		}
	}

	return dead
}

// Latest returns the retained per-pair outcomes of the most recent cycle.
func (e *Engine) Latest() []PairStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]PairStatus, 0, len(e.latest))
	for _, pair := range e.pairs {
		if status, ok := e.latest[pair.ID]; ok {
			out = append(out, status)
		}
	}
	return out
}

// LatestFor returns the retained outcome for one pair.
func (e *Engine) LatestFor(pairID string) (PairStatus, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	status, ok := e.latest[pairID]
	return status, ok
}

// Status summarizes engine health for the HTTP surface.
type Status struct {
	Running        bool      `json:"running"`
	Subscribers    int       `json:"subscribers"`
	ActiveAlerts   int       `json:"activeAlerts"`
	LastPriceCheck time.Time `json:"lastPriceCheck"`
	MonitoredPairs []string  `json:"monitoredPairs"`
	UptimeSeconds  int64     `json:"uptimeSeconds"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	lastCycle := e.lastCycle
	e.mu.RUnlock()

	pairs := make([]string, len(e.pairs))
	for i, pair := range e.pairs {
		pairs[i] = pair.ID
	}

	return Status{
		Running:        !lastCycle.IsZero(),
		Subscribers:    e.reg.SubscriberCount(),
		ActiveAlerts:   e.reg.UntriggeredCount(),
		LastPriceCheck: lastCycle,
		MonitoredPairs: pairs,
		UptimeSeconds:  int64(time.Since(e.startedAt).Seconds()),
	}
}

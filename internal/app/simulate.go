package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"fx-signal-alerts/internal/alerting"
	"fx-signal-alerts/internal/history"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
	"fx-signal-alerts/internal/risk"
	"fx-signal-alerts/internal/service"
)

// Simulate drives the full engine over synthetic random-walk ticks, with
// notifications logged instead of delivered. Useful for exercising the
// scoring and alerting path without live providers or a browser.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Cycles <= 0 {
		return errors.New("--cycles must be positive")
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	walker := newWalkFetcher(rand.New(rand.NewSource(seed)))

	reg := registry.New(nil, a.Logger)
	reg.Subscribe(ctx, "simulated-endpoint", "", "")

	dispatcher := alerting.NewDispatcher(logSender{logger: a.Logger}, reg, a.Config.Alerting.DeliveryTimeout, a.Logger)
	evaluator := alerting.NewEvaluator(reg, dispatcher, a.Config.Alerting.VolatilityPct, a.Logger)
	settings := risk.NewSettingsStore(a.Config.Risk)

	engine := service.New(
		nil,
		walker,
		history.NewStore(a.Config.History.Cap),
		reg,
		evaluator,
		nil,
		settings,
		a.Config.Pairs,
		a.Logger,
	)

	a.Logger.Info().Int("cycles", opts.Cycles).Int64("seed", seed).Msg("starting simulation")

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	for i := 0; i < opts.Cycles; i++ {
		if err := engine.RunCycle(ctx, bucket); err != nil {
			return err
		}
		bucket = bucket.Add(a.Config.Scheduler.Interval)
	}

	printSignals(engine.Latest())
	return nil
}

func printSignals(statuses []service.PairStatus) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tRate\tSignal\tConfidence\tRSI\tEntry\tStop\tTarget")

	for _, status := range statuses {
		analysis := status.Analysis
		fmt.Fprintf(
			writer,
			"%s\t%.4f\t%s\t%d\t%.1f\t%.4f\t%.4f\t%.4f\n",
			status.Pair.ID,
			status.Rate,
			analysis.Signal,
			analysis.Confidence,
			analysis.RSI,
			analysis.EntryPrice,
			analysis.StopLoss,
			analysis.TakeProfit,
		)
	}

	writer.Flush()
}

// walkFetcher produces snapshots by random-walking the offline demo rates.
type walkFetcher struct {
	rng   *rand.Rand
	rates map[string]float64
}

func newWalkFetcher(rng *rand.Rand) *walkFetcher {
	return &walkFetcher{
		rng: rng,
		rates: map[string]float64{
			"USD": 0.00671,
			"EUR": 0.00617,
			"GBP": 0.00528,
			"AUD": 0.01025,
			"CHF": 0.00586,
			"CAD": 0.00924,
		},
	}
}

// FetchSnapshot perturbs each rate by up to ±0.4% per tick.
func (w *walkFetcher) FetchSnapshot(ctx context.Context) (rates.Snapshot, error) {
	out := make(map[string]decimal.Decimal, len(w.rates))
	for code, value := range w.rates {
		value *= 1 + (w.rng.Float64()-0.5)*0.008
		w.rates[code] = value
		out[code] = decimal.NewFromFloat(value)
	}

	return rates.Snapshot{
		Reference: rates.ReferenceCurrency,
		Rates:     out,
		Source:    "simulated",
		FetchedAt: time.Now().UTC(),
	}, nil
}

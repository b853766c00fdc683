package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fx-signal-alerts/internal/registry"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertRateSampleSQL = `INSERT INTO rate_samples (
        pair_id,
        bucket_ts,
        rate,
        change_pct,
        source
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (pair_id, bucket_ts) DO UPDATE
    SET
        rate       = EXCLUDED.rate,
        change_pct = EXCLUDED.change_pct,
        source     = EXCLUDED.source;`

	listSamplesBetweenSQL = `SELECT
        pair_id,
        bucket_ts,
        rate,
        change_pct,
        source,
        created_at
    FROM rate_samples
    WHERE pair_id = $1
      AND bucket_ts >= $2
      AND bucket_ts < $3
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        pair_id,
        bucket_ts,
        rate,
        change_pct,
        source,
        created_at
    FROM rate_samples
    WHERE pair_id = $1
    ORDER BY bucket_ts DESC
    LIMIT $2;`

	countSamplesSQL = `SELECT COUNT(*) FROM rate_samples;`

	listSubscriptionsSQL = `SELECT
        endpoint,
        p256dh,
        auth,
        subscriber_id,
        subscribed_at
    FROM subscriptions
    ORDER BY subscribed_at;`

	insertSubscriptionSQL = `INSERT INTO subscriptions (
        endpoint,
        p256dh,
        auth,
        subscriber_id,
        subscribed_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (endpoint) DO NOTHING;`

	deleteSubscriptionsSQL = `DELETE FROM subscriptions WHERE endpoint = ANY($1);`

	listPriceAlertsSQL = `SELECT
        id,
        subscriber_id,
        pair_id,
        target_price,
        direction,
        triggered,
        created_at,
        triggered_at
    FROM price_alerts
    ORDER BY created_at;`

	insertPriceAlertSQL = `INSERT INTO price_alerts (
        id,
        subscriber_id,
        pair_id,
        target_price,
        direction,
        triggered,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	markAlertTriggeredSQL = `UPDATE price_alerts
    SET triggered = TRUE, triggered_at = $2
    WHERE id = $1
      AND triggered = FALSE;`
)

// RateSampleStore defines operations for rate sample persistence.
type RateSampleStore interface {
	UpsertRateSample(ctx context.Context, sample RateSample) error
	ListSamplesBetween(ctx context.Context, pairID string, from, to time.Time) ([]RateSample, error)
	ListRecentSamples(ctx context.Context, pairID string, limit int) ([]RateSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// Store aggregates access to rate samples, subscriptions and price alerts.
// It satisfies registry.Persistence so the in-memory registry can write
// through to postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertRateSample persists or updates one per-pair observation.
func (s *Store) UpsertRateSample(ctx context.Context, sample RateSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertRateSampleSQL,
		sample.PairID,
		sample.Bucket,
		sample.Rate.String(),
		sample.ChangePct.String(),
		sample.Source,
	)
	if execErr != nil {
		return fmt.Errorf("upsert rate sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists one pair's samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, pairID string, from, to time.Time) ([]RateSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, pairID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]RateSample, 0)
	for rows.Next() {
		sample, scanErr := scanRateSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists one pair's most recent samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, pairID string, limit int) ([]RateSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, pairID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]RateSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanRateSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples across all pairs.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// ListSubscriptions restores the full subscription set.
func (s *Store) ListSubscriptions(ctx context.Context) ([]registry.Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscriptionsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]registry.Subscription, 0)
	for rows.Next() {
		var sub registry.Subscription
		if scanErr := rows.Scan(
			&sub.Endpoint,
			&sub.P256dh,
			&sub.Auth,
			&sub.SubscriberID,
			&sub.SubscribedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// InsertSubscription persists a new subscription.
func (s *Store) InsertSubscription(ctx context.Context, sub registry.Subscription) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSubscriptionSQL,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		sub.SubscriberID,
		sub.SubscribedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert subscription: %w", execErr)
	}
	return nil
}

// DeleteSubscriptions removes subscriptions by endpoint in one batch.
func (s *Store) DeleteSubscriptions(ctx context.Context, endpoints []string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSubscriptionsSQL, endpoints); execErr != nil {
		return fmt.Errorf("delete subscriptions: %w", execErr)
	}
	return nil
}

// ListPriceAlerts restores the full alert set, triggered records included.
func (s *Store) ListPriceAlerts(ctx context.Context) ([]registry.PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPriceAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list price alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]registry.PriceAlert, 0)
	for rows.Next() {
		var (
			alert       registry.PriceAlert
			direction   string
			triggeredAt sql.NullTime
		)
		if scanErr := rows.Scan(
			&alert.ID,
			&alert.SubscriberID,
			&alert.PairID,
			&alert.TargetPrice,
			&direction,
			&alert.Triggered,
			&alert.CreatedAt,
			&triggeredAt,
		); scanErr != nil {
			return nil, scanErr
		}
		alert.Direction = registry.Direction(direction)
		if triggeredAt.Valid {
			ts := triggeredAt.Time
			alert.TriggeredAt = &ts
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// InsertPriceAlert persists a new price alert.
func (s *Store) InsertPriceAlert(ctx context.Context, alert registry.PriceAlert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertPriceAlertSQL,
		alert.ID,
		alert.SubscriberID,
		alert.PairID,
		alert.TargetPrice,
		string(alert.Direction),
		alert.Triggered,
		alert.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert price alert: %w", execErr)
	}
	return nil
}

// MarkAlertTriggered records the one-shot trigger transition.
func (s *Store) MarkAlertTriggered(ctx context.Context, id string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markAlertTriggeredSQL, id, at)
	if execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanRateSample(rows pgx.Rows) (RateSample, error) {
	var (
		pairID       string
		bucket       time.Time
		rateStr      string
		changePctStr string
		source       string
		createdAt    time.Time
	)

	if err := rows.Scan(
		&pairID,
		&bucket,
		&rateStr,
		&changePctStr,
		&source,
		&createdAt,
	); err != nil {
		return RateSample{}, err
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return RateSample{}, fmt.Errorf("parse rate: %w", err)
	}
	changePct, err := decimal.NewFromString(changePctStr)
	if err != nil {
		return RateSample{}, fmt.Errorf("parse change pct: %w", err)
	}

	return RateSample{
		PairID:    pairID,
		Bucket:    bucket,
		Rate:      rate,
		ChangePct: changePct,
		Source:    source,
		CreatedAt: createdAt,
	}, nil
}

var _ registry.Persistence = (*Store)(nil)

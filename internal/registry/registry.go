// Package registry owns the shared subscription and price-alert sets. Every
// writer (the HTTP surface, the alert evaluator, dispatch pruning) goes
// through one mutex so a broadcast read and a prune can never interleave into
// a lost update.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Direction of a price alert trigger.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Valid reports whether the direction is one of the two allowed values.
func (d Direction) Valid() bool {
	return d == Above || d == Below
}

// Subscription is one registered push endpoint. At most one Subscription
// exists per endpoint identity.
type Subscription struct {
	Endpoint     string    `json:"endpoint"`
	P256dh       string    `json:"p256dh"`
	Auth         string    `json:"auth"`
	SubscriberID string    `json:"subscriberId"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

// PriceAlert is a one-shot price-crossing trigger. It transitions from
// untriggered to triggered exactly once and is retained afterwards as a
// firing record.
type PriceAlert struct {
	ID           string     `json:"id"`
	SubscriberID string     `json:"subscriberId"`
	PairID       string     `json:"pairId"`
	TargetPrice  float64    `json:"targetPrice"`
	Direction    Direction  `json:"direction"`
	Triggered    bool       `json:"triggered"`
	CreatedAt    time.Time  `json:"createdAt"`
	TriggeredAt  *time.Time `json:"triggeredAt,omitempty"`
}

// Persistence is the optional durable backing for the registry. All methods
// are write-through: the in-memory set stays authoritative.
type Persistence interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	InsertSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscriptions(ctx context.Context, endpoints []string) error
	ListPriceAlerts(ctx context.Context) ([]PriceAlert, error)
	InsertPriceAlert(ctx context.Context, alert PriceAlert) error
	MarkAlertTriggered(ctx context.Context, id string, at time.Time) error
}

// Registry serializes access to subscriptions and alerts.
type Registry struct {
	mu            sync.Mutex
	subscriptions []Subscription
	alerts        []PriceAlert
	store         Persistence
	logger        zerolog.Logger
}

// New constructs a Registry. store may be nil for in-memory operation.
func New(store Persistence, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Load restores persisted state. Malformed or unreadable state resets to an
// empty registry: startup never fails on bad stored data.
func (r *Registry) Load(ctx context.Context) {
	if r.store == nil {
		return
	}

	subs, err := r.store.ListSubscriptions(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load subscriptions, starting empty")
		subs = nil
	}
	alerts, err := r.store.ListPriceAlerts(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load price alerts, starting empty")
		alerts = nil
	}

	r.mu.Lock()
	r.subscriptions = subs
	r.alerts = alerts
	r.mu.Unlock()

	r.logger.Info().Int("subscriptions", len(subs)).Int("alerts", len(alerts)).Msg("registry state restored")
}

// Subscribe registers an endpoint. An already-known endpoint is returned
// unchanged with created=false.
func (r *Registry) Subscribe(ctx context.Context, endpoint, p256dh, auth string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions {
		if sub.Endpoint == endpoint {
			return sub, false
		}
	}

	sub := Subscription{
		Endpoint:     endpoint,
		P256dh:       p256dh,
		Auth:         auth,
		SubscriberID: uuid.NewString(),
		SubscribedAt: time.Now().UTC(),
	}
	r.subscriptions = append(r.subscriptions, sub)

	if r.store != nil {
		if err := r.store.InsertSubscription(ctx, sub); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist subscription")
		}
	}

	r.logger.Info().Int("total", len(r.subscriptions)).Msg("subscription registered")
	return sub, true
}

// Unsubscribe removes the subscription for an endpoint, reporting how many
// entries were dropped (0 or 1 under the uniqueness invariant).
func (r *Registry) Unsubscribe(ctx context.Context, endpoint string) int {
	return r.removeEndpoints(ctx, []string{endpoint})
}

// Prune removes the given dead endpoints in one batch.
func (r *Registry) Prune(ctx context.Context, endpoints []string) int {
	if len(endpoints) == 0 {
		return 0
	}
	removed := r.removeEndpoints(ctx, endpoints)
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("pruned dead endpoints")
	}
	return removed
}

func (r *Registry) removeEndpoints(ctx context.Context, endpoints []string) int {
	dead := make(map[string]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		dead[endpoint] = struct{}{}
	}

	r.mu.Lock()
	kept := r.subscriptions[:0]
	removed := 0
	for _, sub := range r.subscriptions {
		if _, gone := dead[sub.Endpoint]; gone {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	r.subscriptions = kept
	r.mu.Unlock()

	if removed > 0 && r.store != nil {
		if err := r.store.DeleteSubscriptions(ctx, endpoints); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist subscription removal")
		}
	}
	return removed
}

// Subscriptions returns a copy of the current subscription set.
func (r *Registry) Subscriptions() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscription, len(r.subscriptions))
	copy(out, r.subscriptions)
	return out
}

// SubscriberCount returns the current subscription count.
func (r *Registry) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscriptions)
}

// FindBySubscriber looks a subscription up by its assigned subscriber id.
func (r *Registry) FindBySubscriber(subscriberID string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions {
		if sub.SubscriberID == subscriberID {
			return sub, true
		}
	}
	return Subscription{}, false
}

// AddAlert creates a one-shot price alert for a subscriber.
func (r *Registry) AddAlert(ctx context.Context, subscriberID, pairID string, targetPrice float64, direction Direction) (PriceAlert, error) {
	if !direction.Valid() {
		return PriceAlert{}, fmt.Errorf("invalid alert direction %q", direction)
	}
	if targetPrice <= 0 {
		return PriceAlert{}, fmt.Errorf("target price must be positive, got %v", targetPrice)
	}

	alert := PriceAlert{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		PairID:       pairID,
		TargetPrice:  targetPrice,
		Direction:    direction,
		CreatedAt:    time.Now().UTC(),
	}

	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.InsertPriceAlert(ctx, alert); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist price alert")
		}
	}

	r.logger.Info().Str("pair", pairID).Str("direction", string(direction)).Float64("target", targetPrice).Msg("price alert set")
	return alert, nil
}

// UntriggeredAlerts returns the untriggered alerts for a pair.
func (r *Registry) UntriggeredAlerts(pairID string) []PriceAlert {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PriceAlert, 0)
	for _, alert := range r.alerts {
		if alert.PairID == pairID && !alert.Triggered {
			out = append(out, alert)
		}
	}
	return out
}

// UntriggeredCount counts alerts that have not fired yet.
func (r *Registry) UntriggeredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, alert := range r.alerts {
		if !alert.Triggered {
			count++
		}
	}
	return count
}

// MarkTriggered flips an alert to triggered exactly once. A second call for
// the same id reports false and changes nothing.
func (r *Registry) MarkTriggered(ctx context.Context, alertID string) bool {
	now := time.Now().UTC()

	r.mu.Lock()
	fired := false
	for i := range r.alerts {
		if r.alerts[i].ID == alertID && !r.alerts[i].Triggered {
			r.alerts[i].Triggered = true
			r.alerts[i].TriggeredAt = &now
			fired = true
			break
		}
	}
	r.mu.Unlock()

	if fired && r.store != nil {
		if err := r.store.MarkAlertTriggered(ctx, alertID, now); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist alert trigger")
		}
	}
	return fired
}

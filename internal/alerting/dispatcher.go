package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-signal-alerts/internal/metrics"
	"fx-signal-alerts/internal/registry"
)

// Dispatcher fans one payload out to push endpoints. Per-endpoint failures
// never abort sibling deliveries; endpoints that report a permanent failure
// are returned to the caller, which commits the prune once the whole
// evaluation cycle has finished.
type Dispatcher struct {
	sender  Sender
	reg     *registry.Registry
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. timeout bounds each individual
// delivery attempt; a timed-out attempt is a transient failure, not a hang.
func NewDispatcher(sender Sender, reg *registry.Registry, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		reg:     reg,
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Broadcast delivers the payload to every current subscription concurrently
// and returns the endpoints whose delivery reported a permanent failure.
// Transient failures are logged and left for the next cycle; nothing is
// retried within this call.
func (d *Dispatcher) Broadcast(ctx context.Context, payload Payload) ([]string, error) {
	body, err := payload.Encode()
	if err != nil {
		return nil, err
	}

	subs := d.reg.Subscriptions()
	if len(subs) == 0 {
		return nil, nil
	}

	var (
		mu        sync.Mutex
		dead      []string
		delivered int
		wg        sync.WaitGroup
	)

	for _, sub := range subs {
		wg.Add(1)
		go func(sub registry.Subscription) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			sendErr := d.sender.Send(sendCtx, sub, body)
			mu.Lock()
			defer mu.Unlock()

			switch {
			case sendErr == nil:
				delivered++
			case IsPermanentFailure(sendErr):
				dead = append(dead, sub.Endpoint)
				d.logger.Warn().Err(sendErr).Str("subscriber", sub.SubscriberID).Msg("endpoint permanently gone")
			default:
				d.logger.Warn().Err(sendErr).Str("subscriber", sub.SubscriberID).Msg("delivery failed, will retry next cycle")
			}
		}(sub)
	}
	wg.Wait()

	metrics.NotificationsSent.Add(float64(delivered))
	metrics.NotificationsFailed.Add(float64(len(subs) - delivered))

	d.logger.Info().
		Int("delivered", delivered).
		Int("total", len(subs)).
		Int("dead", len(dead)).
		Str("tag", payload.Tag).
		Msg("broadcast complete")
	return dead, nil
}

// SendTo delivers the payload to one subscription. The returned endpoint is
// non-empty when the delivery reported the endpoint permanently gone.
func (d *Dispatcher) SendTo(ctx context.Context, sub registry.Subscription, payload Payload) (string, error) {
	body, err := payload.Encode()
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if sendErr := d.sender.Send(sendCtx, sub, body); sendErr != nil {
		metrics.NotificationsFailed.Inc()
		if IsPermanentFailure(sendErr) {
			d.logger.Warn().Err(sendErr).Str("subscriber", sub.SubscriberID).Msg("endpoint permanently gone")
			return sub.Endpoint, nil
		}
		d.logger.Warn().Err(sendErr).Str("subscriber", sub.SubscriberID).Msg("delivery failed, will retry next cycle")
		return "", nil
	}

	metrics.NotificationsSent.Inc()
	return "", nil
}

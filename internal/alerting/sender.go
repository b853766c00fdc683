package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"fx-signal-alerts/internal/registry"
)

// DeliveryError carries the push service status code so callers can separate
// permanently-gone endpoints from transient failures.
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service responded %d", e.StatusCode)
}

// Permanent reports whether the endpoint is gone for good and should be
// pruned (HTTP 404/410 from the push service).
func (e *DeliveryError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsPermanentFailure reports whether err signals a permanently-dead endpoint.
func IsPermanentFailure(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Permanent()
	}
	return false
}

// Sender delivers one serialized payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub registry.Subscription, payload []byte) error
}

// WebPushOptions parameterise the VAPID-signed Web Push transport.
type WebPushOptions struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	Timeout         time.Duration
}

// WebPushSender delivers notifications through the Web Push protocol.
type WebPushSender struct {
	opts   WebPushOptions
	client *http.Client
	logger zerolog.Logger
}

// NewWebPushSender constructs the production push transport.
func NewWebPushSender(opts WebPushOptions, logger zerolog.Logger) *WebPushSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = 60
	}

	return &WebPushSender{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "webpush_sender").Logger(),
	}
}

// Send encrypts and posts the payload to the subscription endpoint. Non-2xx
// responses surface as DeliveryError so the dispatcher can classify them.
func (s *WebPushSender) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		TTL:             s.opts.TTL,
		Subscriber:      s.opts.Subscriber,
		VAPIDPublicKey:  s.opts.VAPIDPublicKey,
		VAPIDPrivateKey: s.opts.VAPIDPrivateKey,
	})
	if err != nil {
		return fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}

var _ Sender = (*WebPushSender)(nil)

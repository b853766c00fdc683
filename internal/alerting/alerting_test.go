package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
)

var testPair = rates.PairSpec{ID: "USD_JPY", Base: "USD", Quote: "JPY", Name: "USD/JPY"}

// fakeSender records deliveries and fails configured endpoints.
type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	payloads [][]byte
	fail     map[string]error
}

func (f *fakeSender) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub.Endpoint)
	f.payloads = append(f.payloads, payload)
	if err, ok := f.fail[sub.Endpoint]; ok {
		return err
	}
	return nil
}

func (f *fakeSender) deliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newFixture(fail map[string]error) (*registry.Registry, *fakeSender, *Dispatcher, *Evaluator) {
	reg := registry.New(nil, zerolog.Nop())
	sender := &fakeSender{fail: fail}
	dispatcher := NewDispatcher(sender, reg, time.Second, zerolog.Nop())
	evaluator := NewEvaluator(reg, dispatcher, DefaultVolatilityPct, zerolog.Nop())
	return reg, sender, dispatcher, evaluator
}

func TestBroadcastCollectsOnlyPermanentFailures(t *testing.T) {
	fail := map[string]error{
		"e2": &DeliveryError{StatusCode: http.StatusGone},
		"e4": &DeliveryError{StatusCode: http.StatusNotFound},
		"e5": &DeliveryError{StatusCode: http.StatusBadGateway}, // transient
	}
	reg, sender, dispatcher, _ := newFixture(fail)
	ctx := context.Background()

	for _, endpoint := range []string{"e1", "e2", "e3", "e4", "e5"} {
		reg.Subscribe(ctx, endpoint, "k", "a")
	}

	dead, err := dispatcher.Broadcast(ctx, TestPayload())
	if err != nil {
		t.Fatalf("broadcast must not fail as a whole: %v", err)
	}
	if sender.deliveries() != 5 {
		t.Fatalf("every subscription must be attempted, got %d", sender.deliveries())
	}
	if len(dead) != 2 {
		t.Fatalf("exactly the 2 permanent failures must be collected, got %v", dead)
	}

	// The prune is committed separately; exactly the dead pair goes, the
	// other three stay, regardless of delivery order.
	reg.Prune(ctx, dead)
	if reg.SubscriberCount() != 3 {
		t.Fatalf("expected 3 surviving subscriptions, got %d", reg.SubscriberCount())
	}
	for _, sub := range reg.Subscriptions() {
		if sub.Endpoint == "e2" || sub.Endpoint == "e4" {
			t.Fatalf("permanently-gone endpoint retained: %s", sub.Endpoint)
		}
	}
}

func TestBroadcastNoSubscribers(t *testing.T) {
	_, sender, dispatcher, _ := newFixture(nil)

	dead, err := dispatcher.Broadcast(context.Background(), TestPayload())
	if err != nil || len(dead) != 0 {
		t.Fatalf("empty set must be a no-op: dead=%v err=%v", dead, err)
	}
	if sender.deliveries() != 0 {
		t.Fatal("no deliveries expected without subscribers")
	}
}

func TestVolatilityFiresAtThreshold(t *testing.T) {
	reg, sender, _, evaluator := newFixture(nil)
	ctx := context.Background()
	reg.Subscribe(ctx, "e1", "k", "a")

	dead := evaluator.Evaluate(ctx, testPair, 149.00, true, 149.80) // +0.54%
	if len(dead) != 0 {
		t.Fatalf("healthy endpoint must not be collected: %v", dead)
	}
	if sender.deliveries() != 1 {
		t.Fatalf("volatility alert must fire exactly once, got %d deliveries", sender.deliveries())
	}

	var payload Payload
	if err := json.Unmarshal(sender.payloads[0], &payload); err != nil {
		t.Fatalf("payload must be valid JSON: %v", err)
	}
	if payload.Data.Type != TypeVolatility {
		t.Fatalf("expected volatility payload, got %s", payload.Data.Type)
	}
	if payload.Data.PairID != testPair.ID {
		t.Fatalf("payload must carry the pair id, got %q", payload.Data.PairID)
	}
}

func TestVolatilitySkippedBelowThreshold(t *testing.T) {
	reg, sender, _, evaluator := newFixture(nil)
	ctx := context.Background()
	reg.Subscribe(ctx, "e1", "k", "a")

	evaluator.Evaluate(ctx, testPair, 149.00, true, 149.50) // +0.34%
	if sender.deliveries() != 0 {
		t.Fatal("sub-threshold move must not fire")
	}
}

func TestVolatilitySkippedOnFirstObservation(t *testing.T) {
	reg, sender, _, evaluator := newFixture(nil)
	ctx := context.Background()
	reg.Subscribe(ctx, "e1", "k", "a")

	evaluator.Evaluate(ctx, testPair, 0, false, 149.00)
	if sender.deliveries() != 0 {
		t.Fatal("first observation must never fire a volatility alert")
	}
}

func TestVolatilitySkippedWithoutSubscribers(t *testing.T) {
	_, sender, _, evaluator := newFixture(nil)

	evaluator.Evaluate(context.Background(), testPair, 149.00, true, 152.00)
	if sender.deliveries() != 0 {
		t.Fatal("zero subscribers must skip the volatility check entirely")
	}
}

func TestUserAlertFiresOnceAndNeverAgain(t *testing.T) {
	reg, sender, _, evaluator := newFixture(nil)
	ctx := context.Background()

	sub, _ := reg.Subscribe(ctx, "e1", "k", "a")
	alert, err := reg.AddAlert(ctx, sub.SubscriberID, testPair.ID, 150.0, registry.Above)
	if err != nil {
		t.Fatal(err)
	}

	// Below target: nothing fires. Use small moves so volatility stays quiet.
	evaluator.Evaluate(ctx, testPair, 149.40, true, 149.50)
	if sender.deliveries() != 0 {
		t.Fatal("alert must not fire below target")
	}

	// Crosses target: fires exactly once.
	evaluator.Evaluate(ctx, testPair, 149.50, true, 150.05)
	if sender.deliveries() != 1 {
		t.Fatalf("alert must fire on first satisfying tick, got %d", sender.deliveries())
	}

	var payload Payload
	if err := json.Unmarshal(sender.payloads[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Data.Type != TypeUserAlert || payload.Data.AlertID != alert.ID {
		t.Fatalf("expected user-alert payload for %s, got %+v", alert.ID, payload.Data)
	}

	// Drops below and rises above again: the triggered alert stays silent.
	evaluator.Evaluate(ctx, testPair, 150.05, true, 149.60)
	evaluator.Evaluate(ctx, testPair, 149.60, true, 150.20)
	if sender.deliveries() != 1 {
		t.Fatalf("triggered alert must never re-fire, got %d deliveries", sender.deliveries())
	}
}

func TestUserAlertBelowDirection(t *testing.T) {
	reg, sender, _, evaluator := newFixture(nil)
	ctx := context.Background()

	sub, _ := reg.Subscribe(ctx, "e1", "k", "a")
	if _, err := reg.AddAlert(ctx, sub.SubscriberID, testPair.ID, 148.0, registry.Below); err != nil {
		t.Fatal(err)
	}

	evaluator.Evaluate(ctx, testPair, 148.20, true, 148.10)
	if sender.deliveries() != 0 {
		t.Fatal("below alert must not fire above target")
	}

	evaluator.Evaluate(ctx, testPair, 148.10, true, 147.95)
	if sender.deliveries() != 1 {
		t.Fatalf("below alert must fire at or under target, got %d", sender.deliveries())
	}
}

func TestDanglingAlertSkippedSilently(t *testing.T) {
	reg, sender, _, evaluator := newFixture(nil)
	ctx := context.Background()

	if _, err := reg.AddAlert(ctx, "gone-subscriber", testPair.ID, 150.0, registry.Above); err != nil {
		t.Fatal(err)
	}
	// A live subscriber exists so volatility checks are not the reason
	// nothing fires for the dangling alert owner.
	reg.Subscribe(ctx, "e1", "k", "a")

	evaluator.Evaluate(ctx, testPair, 150.00, true, 150.10)
	if sender.deliveries() != 0 {
		t.Fatal("dangling alert must not dispatch")
	}
	if reg.UntriggeredCount() != 0 {
		t.Fatal("dangling alert must still be marked triggered")
	}
}

func TestPayloadWireFieldNames(t *testing.T) {
	body, err := VolatilityPayload(testPair, 0.62, 149.87).Encode()
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"title", "body", "icon", "tag", "requireInteraction", "data"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("payload missing wire field %q", key)
		}
	}

	data, ok := raw["data"].(map[string]any)
	if !ok {
		t.Fatal("data must be an object")
	}
	if data["type"] != "volatility" {
		t.Fatalf("expected type volatility, got %v", data["type"])
	}
	if data["pairId"] != testPair.ID {
		t.Fatalf("expected pairId %s, got %v", testPair.ID, data["pairId"])
	}
}

func TestDeliveryErrorClassification(t *testing.T) {
	if !IsPermanentFailure(&DeliveryError{StatusCode: http.StatusGone}) {
		t.Fatal("410 must be permanent")
	}
	if !IsPermanentFailure(&DeliveryError{StatusCode: http.StatusNotFound}) {
		t.Fatal("404 must be permanent")
	}
	if IsPermanentFailure(&DeliveryError{StatusCode: http.StatusInternalServerError}) {
		t.Fatal("5xx must be transient")
	}
	if IsPermanentFailure(context.DeadlineExceeded) {
		t.Fatal("timeouts must be transient")
	}
}

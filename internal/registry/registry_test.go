package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func newTestRegistry() *Registry {
	return New(nil, zerolog.Nop())
}

func TestSubscribeEndpointUniqueness(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	first, created := reg.Subscribe(ctx, "https://push.example/abc", "key", "auth")
	if !created {
		t.Fatal("first subscribe must create")
	}
	if first.SubscriberID == "" {
		t.Fatal("subscriber id must be assigned")
	}

	second, created := reg.Subscribe(ctx, "https://push.example/abc", "key", "auth")
	if created {
		t.Fatal("duplicate endpoint must not create a second subscription")
	}
	if second.SubscriberID != first.SubscriberID {
		t.Fatal("duplicate subscribe must return the existing subscription")
	}
	if reg.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscription, got %d", reg.SubscriberCount())
	}
}

func TestUnsubscribe(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	reg.Subscribe(ctx, "https://push.example/a", "k", "a")
	reg.Subscribe(ctx, "https://push.example/b", "k", "a")

	if removed := reg.Unsubscribe(ctx, "https://push.example/a"); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if removed := reg.Unsubscribe(ctx, "https://push.example/a"); removed != 0 {
		t.Fatalf("second unsubscribe must remove nothing, got %d", removed)
	}
	if reg.SubscriberCount() != 1 {
		t.Fatalf("expected 1 remaining subscription, got %d", reg.SubscriberCount())
	}
}

func TestPruneBatch(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	endpoints := []string{"e1", "e2", "e3", "e4", "e5"}
	for _, e := range endpoints {
		reg.Subscribe(ctx, e, "k", "a")
	}

	removed := reg.Prune(ctx, []string{"e2", "e4"})
	if removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}

	remaining := reg.Subscriptions()
	if len(remaining) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(remaining))
	}
	for _, sub := range remaining {
		if sub.Endpoint == "e2" || sub.Endpoint == "e4" {
			t.Fatalf("pruned endpoint survived: %s", sub.Endpoint)
		}
	}
}

func TestAddAlertValidation(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	if _, err := reg.AddAlert(ctx, "user", "USD_JPY", 150, "sideways"); err == nil {
		t.Fatal("invalid direction must be rejected")
	}
	if _, err := reg.AddAlert(ctx, "user", "USD_JPY", 0, Above); err == nil {
		t.Fatal("non-positive target must be rejected")
	}

	alert, err := reg.AddAlert(ctx, "user", "USD_JPY", 150, Above)
	if err != nil {
		t.Fatalf("valid alert must be accepted: %v", err)
	}
	if alert.Triggered {
		t.Fatal("new alert must start untriggered")
	}
	if reg.UntriggeredCount() != 1 {
		t.Fatalf("expected 1 untriggered alert, got %d", reg.UntriggeredCount())
	}
}

func TestMarkTriggeredExactlyOnce(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	alert, err := reg.AddAlert(ctx, "user", "USD_JPY", 150, Above)
	if err != nil {
		t.Fatal(err)
	}

	if !reg.MarkTriggered(ctx, alert.ID) {
		t.Fatal("first trigger must fire")
	}
	if reg.MarkTriggered(ctx, alert.ID) {
		t.Fatal("second trigger must be a no-op")
	}
	if reg.UntriggeredCount() != 0 {
		t.Fatal("triggered alert must leave the untriggered set")
	}
	if len(reg.UntriggeredAlerts("USD_JPY")) != 0 {
		t.Fatal("triggered alert must not be re-evaluated")
	}
}

func TestFindBySubscriber(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	sub, _ := reg.Subscribe(ctx, "https://push.example/a", "k", "a")

	found, ok := reg.FindBySubscriber(sub.SubscriberID)
	if !ok || found.Endpoint != sub.Endpoint {
		t.Fatal("lookup by subscriber id must find the subscription")
	}
	if _, ok := reg.FindBySubscriber("missing"); ok {
		t.Fatal("unknown subscriber id must not match")
	}
}

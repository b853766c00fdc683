package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-signal-alerts/internal/alerting"
	"fx-signal-alerts/internal/history"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
	"fx-signal-alerts/internal/risk"
	"fx-signal-alerts/internal/service"
)

type staticFetcher struct{}

func (staticFetcher) FetchSnapshot(ctx context.Context) (rates.Snapshot, error) {
	return rates.Snapshot{
		Reference: rates.ReferenceCurrency,
		Source:    "test-provider",
		FetchedAt: time.Now().UTC(),
		Rates: map[string]decimal.Decimal{
			"USD": decimal.RequireFromString("0.00671"),
			"EUR": decimal.RequireFromString("0.00617"),
			"GBP": decimal.RequireFromString("0.00528"),
			"AUD": decimal.RequireFromString("0.01025"),
		},
	}, nil
}

type noopSender struct{}

func (noopSender) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	return nil
}

func newTestAPI(t *testing.T) (*echo.Echo, *registry.Registry, *service.Engine) {
	t.Helper()

	reg := registry.New(nil, zerolog.Nop())
	dispatcher := alerting.NewDispatcher(noopSender{}, reg, time.Second, zerolog.Nop())
	evaluator := alerting.NewEvaluator(reg, dispatcher, alerting.DefaultVolatilityPct, zerolog.Nop())
	settings := risk.NewSettingsStore(risk.Settings{Capital: 100000, RiskFraction: 0.02, Leverage: 25})

	engine := service.New(nil, staticFetcher{}, history.NewStore(history.DefaultCap), reg, evaluator, nil, settings, rates.DefaultPairs(), zerolog.Nop())

	handler := NewHandler(reg, engine, dispatcher, settings, rates.DefaultPairs(), "test-public-key", zerolog.Nop())

	e := echo.New()
	handler.RegisterRoutes(e)
	return e, reg, engine
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSubscribeCreatesAndDeduplicates(t *testing.T) {
	e, reg, _ := newTestAPI(t)

	body := `{"endpoint":"https://push.example/e1","keys":{"p256dh":"k","auth":"a"}}`
	rec := doJSON(e, http.MethodPost, "/api/subscribe", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var first map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first["subscriberId"] == "" {
		t.Fatal("subscriber id must be assigned")
	}

	// Same endpoint again: same id, not created.
	rec = doJSON(e, http.MethodPost, "/api/subscribe", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	var second map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second["subscriberId"] != first["subscriberId"] {
		t.Fatal("duplicate subscribe must return the original subscriber id")
	}
	if reg.SubscriberCount() != 1 {
		t.Fatalf("expected one subscription, got %d", reg.SubscriberCount())
	}
}

func TestSubscribeRejectsMissingEndpoint(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/subscribe", `{"keys":{"p256dh":"k","auth":"a"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnsubscribe(t *testing.T) {
	e, reg, _ := newTestAPI(t)
	reg.Subscribe(context.Background(), "https://push.example/e1", "k", "a")

	rec := doJSON(e, http.MethodPost, "/api/unsubscribe", `{"endpoint":"https://push.example/e1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reg.SubscriberCount() != 0 {
		t.Fatal("subscription must be removed")
	}
}

func TestSetAlertValidation(t *testing.T) {
	e, reg, _ := newTestAPI(t)
	sub, _ := reg.Subscribe(context.Background(), "https://push.example/e1", "k", "a")

	// Unknown subscriber.
	rec := doJSON(e, http.MethodPost, "/api/set-alert", `{"subscriberId":"nope","pairId":"USD_JPY","targetPrice":150,"direction":"above"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown subscriber, got %d", rec.Code)
	}

	// Unknown pair.
	rec = doJSON(e, http.MethodPost, "/api/set-alert", `{"subscriberId":"`+sub.SubscriberID+`","pairId":"XAU_JPY","targetPrice":150,"direction":"above"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown pair, got %d", rec.Code)
	}

	// Bad direction.
	rec = doJSON(e, http.MethodPost, "/api/set-alert", `{"subscriberId":"`+sub.SubscriberID+`","pairId":"USD_JPY","targetPrice":150,"direction":"sideways"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad direction, got %d", rec.Code)
	}

	// Valid alert.
	rec = doJSON(e, http.MethodPost, "/api/set-alert", `{"subscriberId":"`+sub.SubscriberID+`","pairId":"USD_JPY","targetPrice":150,"direction":"above"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var alert registry.PriceAlert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatal(err)
	}
	if alert.ID == "" || alert.Triggered {
		t.Fatalf("alert must start untriggered with an id, got %+v", alert)
	}
	if reg.UntriggeredCount() != 1 {
		t.Fatalf("expected one active alert, got %d", reg.UntriggeredCount())
	}
}

func TestStatusReflectsEngineState(t *testing.T) {
	e, reg, engine := newTestAPI(t)
	reg.Subscribe(context.Background(), "https://push.example/e1", "k", "a")

	if err := engine.RunCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status service.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Running {
		t.Fatal("status must report running after a cycle")
	}
	if status.Subscribers != 1 {
		t.Fatalf("expected 1 subscriber, got %d", status.Subscribers)
	}
	if len(status.MonitoredPairs) != len(rates.DefaultPairs()) {
		t.Fatalf("expected all pairs monitored, got %v", status.MonitoredPairs)
	}
}

func TestSignalsEndpoint(t *testing.T) {
	e, _, engine := newTestAPI(t)

	if err := engine.RunCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodGet, "/api/signals", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var statuses []service.PairStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != len(rates.DefaultPairs()) {
		t.Fatalf("expected %d pair statuses, got %d", len(rates.DefaultPairs()), len(statuses))
	}
	// One observation: every pair is still collecting history.
	for _, status := range statuses {
		if status.Analysis.Signal != "insufficient-data" {
			t.Fatalf("pair %s should report insufficient data, got %s", status.Pair.ID, status.Analysis.Signal)
		}
	}
}

func TestVAPIDPublicKey(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/api/vapid-public-key", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["publicKey"] != "test-public-key" {
		t.Fatalf("unexpected public key: %q", body["publicKey"])
	}
}

func TestUpdateRiskSettings(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPut, "/api/risk-settings", `{"capital":50000,"riskFraction":0.01,"leverage":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(e, http.MethodPut, "/api/risk-settings", `{"capital":50000,"riskFraction":2,"leverage":10}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range risk fraction, got %d", rec.Code)
	}
}

func TestSendTestNotification(t *testing.T) {
	e, reg, _ := newTestAPI(t)
	sub, _ := reg.Subscribe(context.Background(), "https://push.example/e1", "k", "a")

	rec := doJSON(e, http.MethodPost, "/api/send-test-notification", `{"subscriberId":"`+sub.SubscriberID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(e, http.MethodPost, "/api/send-test-notification", `{"subscriberId":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown subscriber, got %d", rec.Code)
	}
}

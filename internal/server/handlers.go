package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"fx-signal-alerts/internal/alerting"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
	"fx-signal-alerts/internal/risk"
	"fx-signal-alerts/internal/service"
)

// Handler implements the JSON API over the registry and engine.
type Handler struct {
	reg            *registry.Registry
	engine         *service.Engine
	dispatcher     *alerting.Dispatcher
	settings       *risk.SettingsStore
	pairs          map[string]rates.PairSpec
	vapidPublicKey string
	logger         zerolog.Logger
}

// NewHandler wires the API dependencies. vapidPublicKey may be empty when
// push delivery is disabled.
func NewHandler(
	reg *registry.Registry,
	engine *service.Engine,
	dispatcher *alerting.Dispatcher,
	settings *risk.SettingsStore,
	pairs []rates.PairSpec,
	vapidPublicKey string,
	logger zerolog.Logger,
) *Handler {
	byID := make(map[string]rates.PairSpec, len(pairs))
	for _, pair := range pairs {
		byID[pair.ID] = pair
	}
	return &Handler{
		reg:            reg,
		engine:         engine,
		dispatcher:     dispatcher,
		settings:       settings,
		pairs:          byID,
		vapidPublicKey: vapidPublicKey,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes attaches all API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/subscribe", h.Subscribe)
	g.POST("/unsubscribe", h.Unsubscribe)
	g.POST("/set-alert", h.SetAlert)
	g.POST("/send-test-notification", h.SendTestNotification)
	g.PUT("/risk-settings", h.UpdateRiskSettings)
	g.GET("/status", h.GetStatus)
	g.GET("/signals", h.GetSignals)
	g.GET("/vapid-public-key", h.GetVAPIDPublicKey)
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe registers a push endpoint. Re-subscribing an existing endpoint
// returns its assigned subscriber id unchanged.
func (h *Handler) Subscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return errorJSON(c, http.StatusBadRequest, "endpoint is required")
	}

	sub, created := h.reg.Subscribe(c.Request().Context(), req.Endpoint, req.Keys.P256dh, req.Keys.Auth)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]any{
		"subscriberId": sub.SubscriberID,
		"created":      created,
	})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe removes a push endpoint.
func (h *Handler) Unsubscribe(c echo.Context) error {
	var req unsubscribeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return errorJSON(c, http.StatusBadRequest, "endpoint is required")
	}

	removed := h.reg.Unsubscribe(c.Request().Context(), req.Endpoint)
	return c.JSON(http.StatusOK, map[string]any{"removed": removed})
}

type setAlertRequest struct {
	SubscriberID string  `json:"subscriberId"`
	PairID       string  `json:"pairId"`
	TargetPrice  float64 `json:"targetPrice"`
	Direction    string  `json:"direction"`
}

// SetAlert creates a one-shot price alert for a known subscriber and pair.
func (h *Handler) SetAlert(c echo.Context) error {
	var req setAlertRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if _, ok := h.reg.FindBySubscriber(req.SubscriberID); !ok {
		return errorJSON(c, http.StatusNotFound, "unknown subscriber")
	}
	if _, ok := h.pairs[req.PairID]; !ok {
		return errorJSON(c, http.StatusBadRequest, "unknown pair")
	}

	alert, err := h.reg.AddAlert(c.Request().Context(), req.SubscriberID, req.PairID, req.TargetPrice, registry.Direction(req.Direction))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, alert)
}

type testNotificationRequest struct {
	SubscriberID string `json:"subscriberId"`
}

// SendTestNotification delivers a test payload to one subscriber, or to all
// subscribers when no id is given.
func (h *Handler) SendTestNotification(c echo.Context) error {
	var req testNotificationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	payload := alerting.TestPayload()

	if req.SubscriberID != "" {
		sub, ok := h.reg.FindBySubscriber(req.SubscriberID)
		if !ok {
			return errorJSON(c, http.StatusNotFound, "unknown subscriber")
		}
		if _, err := h.dispatcher.SendTo(ctx, sub, payload); err != nil {
			return errorJSON(c, http.StatusInternalServerError, "delivery failed")
		}
		return c.JSON(http.StatusOK, map[string]any{"sent": 1})
	}

	dead, err := h.dispatcher.Broadcast(ctx, payload)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "broadcast failed")
	}
	pruned := h.reg.Prune(ctx, dead)
	return c.JSON(http.StatusOK, map[string]any{
		"sent":   h.reg.SubscriberCount(),
		"pruned": pruned,
	})
}

type riskSettingsRequest struct {
	Capital      float64 `json:"capital"`
	RiskFraction float64 `json:"riskFraction"`
	Leverage     float64 `json:"leverage"`
}

// UpdateRiskSettings replaces the process-wide position sizing settings.
func (h *Handler) UpdateRiskSettings(c echo.Context) error {
	var req riskSettingsRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Capital <= 0 {
		return errorJSON(c, http.StatusBadRequest, "capital must be positive")
	}
	if req.RiskFraction <= 0 || req.RiskFraction >= 1 {
		return errorJSON(c, http.StatusBadRequest, "riskFraction must be a fraction between 0 and 1")
	}

	settings := risk.Settings{
		Capital:      req.Capital,
		RiskFraction: req.RiskFraction,
		Leverage:     req.Leverage,
	}
	h.settings.Set(settings)
	return c.JSON(http.StatusOK, map[string]any{
		"capital":      settings.Capital,
		"riskFraction": settings.RiskFraction,
		"leverage":     settings.Leverage,
	})
}

// GetStatus reports engine health and registry counts.
func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Status())
}

// GetSignals returns the latest per-pair analyses.
func (h *Handler) GetSignals(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Latest())
}

// GetVAPIDPublicKey hands the browser the key it needs to subscribe.
func (h *Handler) GetVAPIDPublicKey(c echo.Context) error {
	if h.vapidPublicKey == "" {
		return errorJSON(c, http.StatusServiceUnavailable, "push delivery is not configured")
	}
	return c.JSON(http.StatusOK, map[string]string{"publicKey": h.vapidPublicKey})
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

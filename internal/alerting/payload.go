package alerting

import (
	"encoding/json"
	"fmt"
	"time"

	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
)

// PayloadType tags the closed set of notification variants.
type PayloadType string

const (
	TypeVolatility PayloadType = "volatility"
	TypeUserAlert  PayloadType = "user-alert"
	TypeTest       PayloadType = "test"
)

// Payload is the wire form consumed by the service worker on the client.
// Field names are part of the interoperability contract and must not change.
type Payload struct {
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Icon               string      `json:"icon"`
	Badge              string      `json:"badge,omitempty"`
	Tag                string      `json:"tag"`
	RequireInteraction bool        `json:"requireInteraction"`
	Data               PayloadData `json:"data"`
}

// PayloadData carries the trigger-specific fields for one variant.
type PayloadData struct {
	Type        PayloadType `json:"type"`
	PairID      string      `json:"pairId,omitempty"`
	PairName    string      `json:"pairName,omitempty"`
	Change      float64     `json:"change,omitempty"`
	Rate        float64     `json:"rate,omitempty"`
	AlertID     string      `json:"alertId,omitempty"`
	TargetPrice float64     `json:"targetPrice,omitempty"`
	CurrentRate float64     `json:"currentRate,omitempty"`
	Timestamp   int64       `json:"timestamp,omitempty"`
}

const (
	iconPath  = "/icon-192.png"
	badgePath = "/badge-96.png"
)

// VolatilityPayload builds the broadcast for a large tick-over-tick move.
func VolatilityPayload(pair rates.PairSpec, changePct, currentRate float64) Payload {
	direction := "up"
	if changePct < 0 {
		direction = "down"
	}
	magnitude := changePct
	if magnitude < 0 {
		magnitude = -magnitude
	}

	return Payload{
		Title:              fmt.Sprintf("%s %s", pair.Name, direction),
		Body:               fmt.Sprintf("%.2f%% move | now %.3f", magnitude, currentRate),
		Icon:               iconPath,
		Badge:              badgePath,
		Tag:                "volatility-" + pair.ID,
		RequireInteraction: true,
		Data: PayloadData{
			Type:     TypeVolatility,
			PairID:   pair.ID,
			PairName: pair.Name,
			Change:   changePct,
			Rate:     currentRate,
		},
	}
}

// UserAlertPayload builds the targeted notification for a fired price alert.
func UserAlertPayload(pair rates.PairSpec, alert registry.PriceAlert, currentRate float64) Payload {
	return Payload{
		Title:              fmt.Sprintf("%s target reached", pair.Name),
		Body:               fmt.Sprintf("target %.3f hit | now %.3f", alert.TargetPrice, currentRate),
		Icon:               iconPath,
		Tag:                "alert-" + alert.ID,
		RequireInteraction: true,
		Data: PayloadData{
			Type:        TypeUserAlert,
			PairID:      pair.ID,
			AlertID:     alert.ID,
			TargetPrice: alert.TargetPrice,
			CurrentRate: currentRate,
		},
	}
}

// TestPayload builds the payload for the manual delivery check endpoint.
func TestPayload() Payload {
	return Payload{
		Title: "FX Signal Alerts",
		Body:  "Test notification delivered successfully",
		Icon:  iconPath,
		Tag:   "test",
		Data: PayloadData{
			Type:      TypeTest,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

// Encode serializes the payload for the push transport.
func (p Payload) Encode() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal notification payload: %w", err)
	}
	return body, nil
}

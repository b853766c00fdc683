package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSample is one persisted per-pair observation from an evaluation cycle.
type RateSample struct {
	PairID    string
	Bucket    time.Time
	Rate      decimal.Decimal
	ChangePct decimal.Decimal
	Source    string
	CreatedAt time.Time
}

package signal

import (
	"math"

	"fx-signal-alerts/internal/history"
	"fx-signal-alerts/internal/indicator"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/risk"
)

// Label classifies a directional signal.
type Label string

const (
	StrongBuy        Label = "strong-buy"
	Buy              Label = "buy"
	Hold             Label = "hold"
	Sell             Label = "sell"
	StrongSell       Label = "strong-sell"
	InsufficientData Label = "insufficient-data"
)

// MinHistory is the minimum number of price points required before a
// concrete signal is produced.
const MinHistory = 20

// Net-score thresholds for the five-level label. Scores in (-2, 2) hold.
const (
	strongThreshold = 5.0
	actThreshold    = 2.0
)

// Stop-loss and take-profit offsets as ATR multiples.
const (
	stopLossATRMultiple   = 1.5
	takeProfitATRMultiple = 3.0
)

// Analysis is the ephemeral per-pair output of one scoring pass.
type Analysis struct {
	Signal     Label                `json:"signal"`
	Confidence int                  `json:"confidence"`
	RSI        float64              `json:"rsi"`
	MACD       indicator.MACDResult `json:"macd"`
	ATR        float64              `json:"atr"`
	EntryPrice float64              `json:"entryPrice"`
	StopLoss   float64              `json:"stopLoss"`
	TakeProfit float64              `json:"takeProfit"`
	RiskReward float64              `json:"riskReward"`
	Reasons    []string             `json:"reasons"`
	Risk       risk.Plan            `json:"risk"`
}

// Actionable reports whether the analysis carries a concrete signal.
func (a Analysis) Actionable() bool {
	return a.Signal != InsufficientData && a.Signal != Hold
}

// Long reports whether the signal points long.
func (a Analysis) Long() bool {
	return a.Signal == Buy || a.Signal == StrongBuy
}

// Score combines RSI extremes, MACD crossover direction, Bollinger position,
// and moving-average position into a weighted net score, then derives the
// label, confidence, and entry/stop/target levels. Histories shorter than
// MinHistory return the insufficient-data placeholder.
func Score(series []history.PricePoint, pair rates.PairSpec, settings risk.Settings) Analysis {
	if len(series) < MinHistory {
		return Analysis{
			Signal:     InsufficientData,
			Confidence: 0,
			RSI:        50,
			Reasons:    []string{"collecting history: 20 points required"},
		}
	}

	prices := history.Rates(series)
	currentPrice := prices[len(prices)-1]

	rsi := indicator.RSI(prices, indicator.DefaultRSIPeriod)
	macd := indicator.MACD(prices)
	bands := indicator.Bollinger(prices, indicator.DefaultBollingerPeriod, indicator.DefaultBollingerWidth)
	ma20 := indicator.SMA(prices, 20)
	ma50 := indicator.SMA(prices, 50)
	atr := indicator.ATR(prices, indicator.DefaultATRPeriod)

	var buyScore, sellScore float64
	reasons := make([]string, 0, 4)

	switch {
	case rsi < 30:
		buyScore += 3
		reasons = append(reasons, "RSI oversold")
	case rsi < 40:
		buyScore += 1.5
		reasons = append(reasons, "RSI leaning oversold")
	case rsi > 70:
		sellScore += 3
		reasons = append(reasons, "RSI overbought")
	case rsi > 60:
		sellScore += 1.5
		reasons = append(reasons, "RSI leaning overbought")
	}

	if macd.Histogram > 0 && macd.MACD > macd.Signal {
		buyScore += 2
		reasons = append(reasons, "MACD bullish crossover")
	} else if macd.Histogram < 0 && macd.MACD < macd.Signal {
		sellScore += 2
		reasons = append(reasons, "MACD bearish crossover")
	}

	if currentPrice < bands.Lower {
		buyScore += 2
		reasons = append(reasons, "price below lower Bollinger band")
	} else if currentPrice > bands.Upper {
		sellScore += 2
		reasons = append(reasons, "price above upper Bollinger band")
	}

	if currentPrice > ma20 && currentPrice > ma50 {
		buyScore += 1
		reasons = append(reasons, "price above both moving averages")
	} else if currentPrice < ma20 && currentPrice < ma50 {
		sellScore += 1
		reasons = append(reasons, "price below both moving averages")
	}

	net := buyScore - sellScore
	label, confidence := classify(net)

	long := net > 0
	stopOffset := atr * stopLossATRMultiple
	profitOffset := atr * takeProfitATRMultiple

	stopLoss := currentPrice + stopOffset
	takeProfit := currentPrice - profitOffset
	if long {
		stopLoss = currentPrice - stopOffset
		takeProfit = currentPrice + profitOffset
	}

	riskReward := 0.0
	if stopDist := math.Abs(currentPrice - stopLoss); stopDist > 0 {
		riskReward = math.Abs(takeProfit-currentPrice) / stopDist
	}

	return Analysis{
		Signal:     label,
		Confidence: confidence,
		RSI:        rsi,
		MACD:       macd,
		ATR:        atr,
		EntryPrice: currentPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		RiskReward: riskReward,
		Reasons:    reasons,
		Risk:       risk.Size(currentPrice, stopLoss, settings),
	}
}

func classify(net float64) (Label, int) {
	abs := math.Abs(net)
	switch {
	case net >= strongThreshold:
		return StrongBuy, boundConfidence(60 + abs*5)
	case net >= actThreshold:
		return Buy, boundConfidence(55 + abs*5)
	case net <= -strongThreshold:
		return StrongSell, boundConfidence(60 + abs*5)
	case net <= -actThreshold:
		return Sell, boundConfidence(55 + abs*5)
	default:
		return Hold, 50
	}
}

func boundConfidence(value float64) int {
	if value > 95 {
		return 95
	}
	if value < 50 {
		return 50
	}
	return int(math.Round(value))
}

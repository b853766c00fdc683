// Package indicator provides pure, stateless technical indicators over a
// price sequence. Every function degrades to a neutral default on short
// input and never fails: calculation guards are the caller's contract.
//
// The feed delivers a single traded rate per tick, so ATR approximates the
// true range with high = rate, low = rate*0.999, close = rate. This is a
// deliberate approximation of OHLC data that the sources do not provide.
package indicator

import "math"

const (
	// DefaultRSIPeriod is the standard 14-period lookback.
	DefaultRSIPeriod = 14
	// DefaultATRPeriod is the standard 14-interval lookback.
	DefaultATRPeriod = 14
	// DefaultBollingerPeriod with DefaultBollingerWidth gives the usual
	// 20-period, 2-sigma bands.
	DefaultBollingerPeriod = 20
	DefaultBollingerWidth  = 2.0

	// atrFloor is returned when history is too short for a true range mean.
	atrFloor = 0.01
)

// SMA returns the mean of the last min(period, len) prices. Empty input
// yields zero.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 || period <= 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}

	sum := 0.0
	for _, price := range prices[len(prices)-period:] {
		sum += price
	}
	return sum / float64(period)
}

// EMA returns an exponential moving average seeded with the first price and
// smoothed with k = 2/(period+1).
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period <= 0 {
		return prices[len(prices)-1]
	}

	k := 2.0 / float64(period+1)
	ema := prices[0]
	for _, price := range prices[1:] {
		ema = price*k + ema*(1-k)
	}
	return ema
}

// RSI returns the relative strength index over the trailing period deltas.
// Fewer than period+1 prices yields the neutral 50; an all-gain window yields
// 100. The result is always within [0, 100].
func RSI(prices []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(prices) < period+1 {
		return 50
	}

	gains := 0.0
	losses := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult bundles the MACD line, its smoothed signal line, and their
// difference.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes EMA(12)−EMA(26) pointwise over the price series and smooths
// the resulting MACD line with a 9-period EMA for the signal line.
func MACD(prices []float64) MACDResult {
	if len(prices) == 0 {
		return MACDResult{}
	}

	macdLine := make([]float64, len(prices))
	k12 := 2.0 / 13.0
	k26 := 2.0 / 27.0
	ema12 := prices[0]
	ema26 := prices[0]
	for i, price := range prices {
		if i > 0 {
			ema12 = price*k12 + ema12*(1-k12)
			ema26 = price*k26 + ema26*(1-k26)
		}
		macdLine[i] = ema12 - ema26
	}

	macd := macdLine[len(macdLine)-1]
	signal := EMA(macdLine, 9)
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// Bands holds Bollinger band levels.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger returns middle = SMA(period) and upper/lower offset by
// width·stddev over the same window. Short input collapses the bands onto
// the available mean.
func Bollinger(prices []float64, period int, width float64) Bands {
	if len(prices) == 0 {
		return Bands{}
	}
	if period <= 0 {
		period = DefaultBollingerPeriod
	}
	if period > len(prices) {
		period = len(prices)
	}

	middle := SMA(prices, period)
	variance := 0.0
	for _, price := range prices[len(prices)-period:] {
		diff := price - middle
		variance += diff * diff
	}
	variance /= float64(period)
	stddev := math.Sqrt(variance)

	return Bands{
		Upper:  middle + width*stddev,
		Middle: middle,
		Lower:  middle - width*stddev,
	}
}

// ATR returns the mean true range over the trailing period intervals using
// the single-rate OHLC approximation described in the package comment. Short
// histories return a small positive floor so downstream stop-loss offsets
// stay defined.
func ATR(prices []float64, period int) float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(prices) < period+1 {
		return atrFloor
	}

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		high := prices[i]
		low := prices[i] * 0.999
		prevClose := prices[i-1]

		tr := high - low
		if d := math.Abs(high - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(low - prevClose); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period)
}

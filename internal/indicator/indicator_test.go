package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	if got := SMA(prices, 3); !almostEqual(got, 4) {
		t.Fatalf("expected mean of last 3 = 4, got %f", got)
	}
	if got := SMA(prices, 10); !almostEqual(got, 3) {
		t.Fatalf("period longer than series must use full series: got %f", got)
	}
	if got := SMA(nil, 3); got != 0 {
		t.Fatalf("empty series must yield 0, got %f", got)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	prices := []float64{150, 150, 150, 150}
	if got := EMA(prices, 3); !almostEqual(got, 150) {
		t.Fatalf("EMA of a constant series must equal the constant, got %f", got)
	}
}

func TestEMAFollowsRecurrence(t *testing.T) {
	prices := []float64{10, 20}
	k := 2.0 / 4.0
	want := 20*k + 10*(1-k)
	if got := EMA(prices, 3); !almostEqual(got, want) {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestRSINeutralOnShortHistory(t *testing.T) {
	prices := []float64{1, 2, 3}
	if got := RSI(prices, DefaultRSIPeriod); got != 50 {
		t.Fatalf("fewer than period+1 points must yield 50, got %f", got)
	}
}

func TestRSIHundredWhenAllGains(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	if got := RSI(prices, DefaultRSIPeriod); got != 100 {
		t.Fatalf("all-gain window must yield 100, got %f", got)
	}
}

func TestRSIWithinBounds(t *testing.T) {
	prices := []float64{100, 99, 101, 98, 102, 97, 103, 96, 104, 95, 105, 94, 106, 93, 107, 92}
	got := RSI(prices, DefaultRSIPeriod)
	if got < 0 || got > 100 {
		t.Fatalf("RSI out of [0,100]: %f", got)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 1.085
	}
	res := MACD(prices)
	if !almostEqual(res.MACD, 0) || !almostEqual(res.Signal, 0) || !almostEqual(res.Histogram, 0) {
		t.Fatalf("flat series must produce zero MACD, got %+v", res)
	}
}

func TestMACDPositiveInUptrend(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	res := MACD(prices)
	if res.MACD <= 0 {
		t.Fatalf("rising series must produce positive MACD, got %+v", res)
	}
}

func TestBollingerBandsSymmetry(t *testing.T) {
	prices := []float64{10, 12, 11, 13, 12, 14, 13, 15, 14, 16, 15, 17, 16, 18, 17, 19, 18, 20, 19, 21}
	bands := Bollinger(prices, DefaultBollingerPeriod, DefaultBollingerWidth)

	if !almostEqual(bands.Upper-bands.Middle, bands.Middle-bands.Lower) {
		t.Fatalf("bands must be symmetric around the middle: %+v", bands)
	}
	if bands.Upper <= bands.Middle {
		t.Fatalf("non-constant series must widen the bands: %+v", bands)
	}
}

func TestBollingerFlatSeriesCollapses(t *testing.T) {
	prices := []float64{5, 5, 5, 5, 5}
	bands := Bollinger(prices, DefaultBollingerPeriod, DefaultBollingerWidth)
	if !almostEqual(bands.Upper, 5) || !almostEqual(bands.Lower, 5) {
		t.Fatalf("flat series must collapse bands onto the mean: %+v", bands)
	}
}

func TestATRFloorOnShortHistory(t *testing.T) {
	if got := ATR([]float64{100, 101}, DefaultATRPeriod); got != 0.01 {
		t.Fatalf("short history must return the floor, got %f", got)
	}
}

func TestATRPositive(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 149 + float64(i%3)
	}
	if got := ATR(prices, DefaultATRPeriod); got <= 0 {
		t.Fatalf("ATR must be positive, got %f", got)
	}
}

package analysis

import (
	"errors"
)

// ErrInsufficientData is returned when a series is too short for the
// requested indicator window. Callers treat it as "indicator absent",
// never as a failure.
var ErrInsufficientData = errors.New("insufficient data")

// PriceSeries is the ordered OHLCV history for one (exchange, pair),
// oldest first. It is rebuilt on every scan and owned exclusively by the
// scan invocation that fetched it.
type PriceSeries struct {
	Closes  []float64
	Volumes []float64
	Highs   []float64
	Lows    []float64
}

// LastClose returns the most recent close, or 0 for an empty series
func (s PriceSeries) LastClose() float64 {
	if len(s.Closes) == 0 {
		return 0
	}
	return s.Closes[len(s.Closes)-1]
}

// MACDResult holds the MACD line, signal line and histogram
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// TrendDirection classifies EMA ordering
type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendNeutral TrendDirection = "neutral"
)

// VolumeProfileResult compares current volume against the historical average
type VolumeProfileResult struct {
	Average float64 `json:"average"`
	Ratio   float64 `json:"ratio"`
	IsHigh  bool    `json:"is_high"`
	IsLow   bool    `json:"is_low"`
}

// RSI computes a single-window relative strength index: average gain and
// average loss are simple averages over the first period deltas, not
// Wilder's running smoothing. A series with no losses reads 100.
func RSI(prices []float64, period int) (float64, error) {
	if len(prices) < period+1 {
		return 0, ErrInsufficientData
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// EMA computes an exponential moving average seeded with the simple
// average of the first period values.
func EMA(prices []float64, period int) (float64, error) {
	if len(prices) < period {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		ema = (p-ema)*multiplier + ema
	}

	return ema, nil
}

// MACD computes the MACD line as EMA(fast) - EMA(slow). The signal line is
// kept as the seed average a signalPeriod-length window yields from the
// single latest MACD value (macd / signalPeriod), not a proper EMA over
// the MACD history. Downstream only consumes the histogram sign, which
// this preserves.
func MACD(prices []float64, fast, slow, signalPeriod int) (*MACDResult, error) {
	if len(prices) < slow+signalPeriod {
		return nil, ErrInsufficientData
	}

	emaFast, err := EMA(prices, fast)
	if err != nil {
		return nil, err
	}
	emaSlow, err := EMA(prices, slow)
	if err != nil {
		return nil, err
	}

	macd := emaFast - emaSlow
	signal := macd / float64(signalPeriod)

	return &MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}, nil
}

// VolumeProfile compares currentVolume against the simple average of the
// historical volumes. Ratio above 1.5 flags high volume, below 0.5 low.
func VolumeProfile(volumes []float64, currentVolume float64) VolumeProfileResult {
	if len(volumes) == 0 {
		return VolumeProfileResult{}
	}

	var sum float64
	for _, v := range volumes {
		sum += v
	}
	avg := sum / float64(len(volumes))
	if avg == 0 {
		return VolumeProfileResult{Average: 0}
	}

	ratio := currentVolume / avg
	return VolumeProfileResult{
		Average: avg,
		Ratio:   ratio,
		IsHigh:  ratio > 1.5,
		IsLow:   ratio < 0.5,
	}
}

// Trend classifies the fast/slow EMA ordering
func Trend(emaFast, emaSlow float64) TrendDirection {
	switch {
	case emaFast > emaSlow:
		return TrendUp
	case emaFast < emaSlow:
		return TrendDown
	default:
		return TrendNeutral
	}
}

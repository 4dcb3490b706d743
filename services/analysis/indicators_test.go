package analysis

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func increasing(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func decreasing(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start - float64(i)
	}
	return out
}

func TestRSI_InsufficientData(t *testing.T) {
	if _, err := RSI(increasing(14, 100), 14); err != ErrInsufficientData {
		t.Fatalf("RSI on 14 points with period 14: err=%v, want ErrInsufficientData", err)
	}
	if _, err := RSI(increasing(15, 100), 14); err != nil {
		t.Fatalf("RSI on 15 points with period 14: unexpected error %v", err)
	}
}

func TestRSI_MonotonicSeries(t *testing.T) {
	up, err := RSI(increasing(20, 100), 14)
	if err != nil {
		t.Fatalf("RSI increasing: %v", err)
	}
	// no losses at all pegs the index at the maximum
	if up != 100 {
		t.Errorf("RSI of strictly increasing series: got %.4f, want 100", up)
	}

	down, err := RSI(decreasing(20, 100), 14)
	if err != nil {
		t.Fatalf("RSI decreasing: %v", err)
	}
	if down <= 0 || down >= 30 {
		t.Errorf("RSI of strictly decreasing series: got %.4f, want in (0, 30)", down)
	}
}

func TestRSI_MixedSeries(t *testing.T) {
	// 14 deltas: +1 seven times, -1 seven times -> avgGain == avgLoss -> RSI 50
	prices := []float64{100}
	for i := 0; i < 7; i++ {
		prices = append(prices, prices[len(prices)-1]+1)
		prices = append(prices, prices[len(prices)-1]-1)
	}
	rsi, err := RSI(prices, 14)
	if err != nil {
		t.Fatalf("RSI: %v", err)
	}
	assertClose(t, "RSI balanced series", rsi, 50, 0.0001)
}

func TestEMA_InsufficientData(t *testing.T) {
	if _, err := EMA(increasing(8, 1), 9); err != ErrInsufficientData {
		t.Fatalf("EMA on 8 points with period 9: err=%v, want ErrInsufficientData", err)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 42.5
	}
	ema, err := EMA(prices, 9)
	if err != nil {
		t.Fatalf("EMA: %v", err)
	}
	assertClose(t, "EMA constant series", ema, 42.5, 1e-9)
}

func TestEMA_HandComputed(t *testing.T) {
	// period 3, multiplier 0.5
	// seed = (1+2+3)/3 = 2
	// after 4: (4-2)*0.5+2 = 3
	// after 5: (5-3)*0.5+3 = 4
	ema, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("EMA: %v", err)
	}
	assertClose(t, "EMA(3)", ema, 4, 1e-9)
}

func TestMACD_InsufficientData(t *testing.T) {
	if _, err := MACD(increasing(34, 100), 12, 26, 9); err != ErrInsufficientData {
		t.Fatalf("MACD on 34 points: err=%v, want ErrInsufficientData", err)
	}
	if _, err := MACD(increasing(35, 100), 12, 26, 9); err != nil {
		t.Fatalf("MACD on 35 points: unexpected error %v", err)
	}
}

func TestMACD_RisingSeriesIsBullish(t *testing.T) {
	res, err := MACD(increasing(60, 100), 12, 26, 9)
	if err != nil {
		t.Fatalf("MACD: %v", err)
	}
	if res.MACD <= 0 {
		t.Errorf("MACD line on rising series: got %.6f, want > 0", res.MACD)
	}
	// histogram keeps the sign of the MACD line under the singleton
	// signal-line derivation
	assertClose(t, "MACD signal", res.Signal, res.MACD/9, 1e-9)
	if res.Histogram <= 0 {
		t.Errorf("MACD histogram on rising series: got %.6f, want > 0", res.Histogram)
	}
}

func TestVolumeProfile(t *testing.T) {
	cases := []struct {
		name    string
		volumes []float64
		current float64
		ratio   float64
		isHigh  bool
		isLow   bool
	}{
		{"spike", []float64{1, 1, 1, 1}, 5, 5, true, false},
		{"normal", []float64{2, 2, 2, 2}, 2, 1, false, false},
		{"dried up", []float64{10, 10, 10, 10}, 1, 0.1, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vp := VolumeProfile(tc.volumes, tc.current)
			assertClose(t, "ratio", vp.Ratio, tc.ratio, 1e-9)
			if vp.IsHigh != tc.isHigh || vp.IsLow != tc.isLow {
				t.Errorf("flags: got high=%v low=%v, want high=%v low=%v",
					vp.IsHigh, vp.IsLow, tc.isHigh, tc.isLow)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	if got := Trend(2, 1); got != TrendUp {
		t.Errorf("Trend(2,1) = %s, want up", got)
	}
	if got := Trend(1, 2); got != TrendDown {
		t.Errorf("Trend(1,2) = %s, want down", got)
	}
	if got := Trend(1, 1); got != TrendNeutral {
		t.Errorf("Trend(1,1) = %s, want neutral", got)
	}
}

func TestCompute_ShortSeriesLeavesIndicatorsAbsent(t *testing.T) {
	set := Compute(PriceSeries{Closes: increasing(10, 100), Volumes: increasing(10, 1)})
	if set.RSI != nil || set.MACD != nil || set.EMASlow != nil {
		t.Errorf("short series should leave RSI/MACD/EMASlow absent: %+v", set)
	}
	if set.EMAFast == nil {
		t.Error("10 points is enough for EMA(9), expected it present")
	}
	if set.Volume == nil {
		t.Error("volume profile should be present with >1 volume points")
	}
}

func TestCompute_FullSeries(t *testing.T) {
	series := PriceSeries{Closes: increasing(60, 100), Volumes: increasing(60, 1)}
	set := Compute(series)
	if set.RSI == nil || set.MACD == nil || set.EMAFast == nil || set.EMASlow == nil || set.Volume == nil {
		t.Fatalf("expected all indicators present: %+v", set)
	}
	if set.Trend != TrendUp {
		t.Errorf("trend on rising series: got %s, want up", set.Trend)
	}
}

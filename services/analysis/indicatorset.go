package analysis

// Standard windows used by the signal pipeline
const (
	RSIPeriod     = 14
	MACDFast      = 12
	MACDSlow      = 26
	MACDSignal    = 9
	EMAFastPeriod = 9
	EMASlowPeriod = 21
)

// IndicatorSet is the immutable snapshot of all indicators derived from
// one PriceSeries during a single scan cycle. Nil pointers mean the
// series was too short for that indicator; absence is not an error.
type IndicatorSet struct {
	RSI     *float64             `json:"rsi,omitempty"`
	MACD    *MACDResult          `json:"macd,omitempty"`
	EMAFast *float64             `json:"ema_fast,omitempty"`
	EMASlow *float64             `json:"ema_slow,omitempty"`
	Volume  *VolumeProfileResult `json:"volume,omitempty"`
	Trend   TrendDirection       `json:"trend,omitempty"`
}

// Compute derives the full indicator set for a series. Indicators whose
// window exceeds the series length are simply left absent.
func Compute(series PriceSeries) IndicatorSet {
	var set IndicatorSet

	if rsi, err := RSI(series.Closes, RSIPeriod); err == nil {
		set.RSI = &rsi
	}
	if macd, err := MACD(series.Closes, MACDFast, MACDSlow, MACDSignal); err == nil {
		set.MACD = macd
	}
	if fast, err := EMA(series.Closes, EMAFastPeriod); err == nil {
		set.EMAFast = &fast
	}
	if slow, err := EMA(series.Closes, EMASlowPeriod); err == nil {
		set.EMASlow = &slow
	}

	if n := len(series.Volumes); n > 1 {
		vp := VolumeProfile(series.Volumes[:n-1], series.Volumes[n-1])
		set.Volume = &vp
	}

	if set.EMAFast != nil && set.EMASlow != nil {
		set.Trend = Trend(*set.EMAFast, *set.EMASlow)
	}

	return set
}

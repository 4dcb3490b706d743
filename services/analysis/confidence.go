package analysis

// Confidence bounds: every emitted signal reads as moderately-to-highly
// confident; anything that would score below the floor is filtered out
// upstream instead of being surfaced with a low number.
const (
	ConfidenceFloor   = 75
	ConfidenceCeiling = 99
)

// ConfidenceScore combines indicator agreement for a proposed direction
// into a bounded integer. Absent indicators contribute nothing. The
// result is clamped into [75, 99] whenever at least one indicator
// contributed, and is exactly 75 when none did. Same inputs always
// produce the same output.
func ConfidenceScore(ind IndicatorSet, direction string) int {
	score := 0
	contributed := false

	if ind.RSI != nil {
		contributed = true
		rsi := *ind.RSI
		switch {
		case (direction == "BUY" && rsi < 30) || (direction == "SELL" && rsi > 70):
			score += 30
		case (direction == "BUY" && rsi < 40) || (direction == "SELL" && rsi > 60):
			score += 20
		default:
			score += 10
		}
	}

	if ind.MACD != nil {
		contributed = true
		hist := ind.MACD.Histogram
		if (direction == "BUY" && hist > 0) || (direction == "SELL" && hist < 0) {
			score += 25
		} else {
			score += 10
		}
	}

	if ind.EMAFast != nil && ind.EMASlow != nil {
		contributed = true
		aligned := (direction == "BUY" && *ind.EMAFast > *ind.EMASlow) ||
			(direction == "SELL" && *ind.EMAFast < *ind.EMASlow)
		if aligned {
			score += 20
		} else {
			score += 5
		}
	}

	if ind.Volume != nil {
		contributed = true
		switch {
		case ind.Volume.IsHigh:
			score += 15
		case ind.Volume.Ratio > 1.2:
			score += 10
		default:
			score += 5
		}
	}

	if ind.Trend != "" {
		contributed = true
		aligned := (direction == "BUY" && ind.Trend == TrendUp) ||
			(direction == "SELL" && ind.Trend == TrendDown)
		if aligned {
			score += 10
		} else {
			score += 5
		}
	}

	if !contributed {
		return ConfidenceFloor
	}
	if score < ConfidenceFloor {
		return ConfidenceFloor
	}
	if score > ConfidenceCeiling {
		return ConfidenceCeiling
	}
	return score
}

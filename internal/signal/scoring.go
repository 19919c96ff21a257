package signal

import "BitcoinSentinel/internal/model"

// normalizeFunc maps a raw indicator value to a score in [0,1]. The full
// reading set is passed so a rule can consult auxiliary readings; a missing
// auxiliary reading simply forgoes its adjustment.
type normalizeFunc func(value float64, readings model.ReadingSet) float64

// normalizers is the closed set of normalization rules, keyed by indicator
// name. New scenarios compose existing rules or add one here.
var normalizers = map[string]normalizeFunc{
	model.IndicatorFedPolicy:        scoreFedPolicy,
	model.IndicatorExchangeReserves: scoreExchangeReserves,
	model.IndicatorM2Growth:         scoreM2Growth,
	model.IndicatorHashRibbon:       scoreHashRibbon,
}

// Fed funds rate bands (percent).
const (
	fedRateUltraLow = 1.0
	fedRateLow      = 3.0
	fedRateNeutral  = 5.0
)

// Pivot-shift thresholds (percentage points over the lookback window).
const (
	pivotDetectShift = 0.50
	pivotCutShift    = -0.25
	pivotHikeShift   = 0.25
)

// scoreFedPolicy rates Fed policy easiness: a band score from the absolute
// rate level times a multiplier from the direction of recent policy moves.
func scoreFedPolicy(rate float64, readings model.ReadingSet) float64 {
	var base float64
	switch {
	case rate < fedRateUltraLow:
		base = 0.8
	case rate < fedRateLow:
		base = 0.5
	case rate < fedRateNeutral:
		base = 0.3
	default:
		base = 0.1
	}

	multiplier := 1.0
	if shift, ok := readings.Get(model.IndicatorFedPivotShift); ok {
		magnitude := shift.Value
		if magnitude < 0 {
			magnitude = -magnitude
		}
		pivotDetected := magnitude > pivotDetectShift
		switch {
		case pivotDetected && shift.Value < pivotCutShift:
			// A confirmed pivot into cuts is strongly bullish.
			multiplier = 1.5 + min(0.5, magnitude/2.0)
		case pivotDetected && shift.Value > pivotHikeShift:
			multiplier = 0.3
		case shift.Value < pivotCutShift:
			// Ongoing cuts without a confirmed pivot.
			multiplier = 1.2
		}
	}

	return clamp01(base * multiplier)
}

// Exchange reserve bands (BTC held on exchanges).
const (
	reservesCriticalLow  = 2.35e6
	reservesLow          = 2.50e6
	reservesHigh         = 2.80e6
	reservesCriticalHigh = 3.00e6
)

// scoreExchangeReserves rates supply scarcity: the less BTC sitting on
// exchanges, the stronger the accumulation signal.
func scoreExchangeReserves(reserves float64, _ model.ReadingSet) float64 {
	switch {
	case reserves < reservesCriticalLow:
		return 1.0
	case reserves < reservesLow:
		return 0.7
	case reserves > reservesCriticalHigh:
		return 0.0
	case reserves > reservesHigh:
		return 0.2
	default:
		return 0.4
	}
}

// M2 YoY growth bands (decimal, 0.10 = 10%).
const (
	m2ExtremeExpansion = 0.15
	m2StrongExpansion  = 0.10
	m2NormalExpansion  = 0.05
	m2Contraction      = 0.0
)

// scoreM2Growth rates monetary expansion, with a bonus when growth itself is
// accelerating.
func scoreM2Growth(growth float64, readings model.ReadingSet) float64 {
	var base float64
	switch {
	case growth >= m2ExtremeExpansion:
		base = 1.0
	case growth >= m2StrongExpansion:
		base = 0.8
	case growth >= m2NormalExpansion:
		base = 0.5
	case growth >= m2Contraction:
		base = 0.2
	default:
		base = 0.0
	}

	bonus := 0.0
	if accel, ok := readings.Get(model.IndicatorM2Acceleration); ok {
		bonus = accel.Value * 5
		if bonus > 0.2 {
			bonus = 0.2
		} else if bonus < -0.2 {
			bonus = -0.2
		}
	}

	return clamp01(base + bonus)
}

// scoreHashRibbon rates miner conditions from the ribbon state, with a bonus
// for a recovery straight out of capitulation.
func scoreHashRibbon(state float64, readings model.ReadingSet) float64 {
	var base float64
	switch {
	case state > 0:
		base = 1.0
	case state < 0:
		base = 0.0
	default:
		base = 0.4
	}

	if cap, ok := readings.Get(model.IndicatorMinerCapitulation); ok && cap.Value > 0 {
		base += 0.3
	}
	return clamp01(base)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

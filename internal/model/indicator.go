package model

import "time"

// Indicator names produced by the gateway and referenced by scenario configs.
const (
	IndicatorFedPolicy        = "fed_policy"
	IndicatorExchangeReserves = "exchange_reserves"
	IndicatorM2Growth         = "m2_growth"
	IndicatorHashRibbon       = "hash_ribbon"

	// Auxiliary readings. Never weighted directly; they refine the score of a
	// primary indicator when present.
	IndicatorFedPivotShift     = "fed_pivot_shift"
	IndicatorM2Acceleration    = "m2_acceleration"
	IndicatorMinerCapitulation = "miner_capitulation"
	IndicatorBitcoinPrice      = "btc_price"
)

// Reading is a single indicator observation at a point in time.
type Reading struct {
	Name      string
	Value     float64
	Timestamp time.Time
}

// ReadingSet maps indicator name to its reading for one analysis run.
type ReadingSet map[string]Reading

// Get returns the reading for name and whether it is present.
func (rs ReadingSet) Get(name string) (Reading, bool) {
	r, ok := rs[name]
	return r, ok
}

package indicator

import "errors"

// Hash ribbon states as reading values.
const (
	RibbonSell    = -1.0
	RibbonNeutral = 0.0
	RibbonBuy     = 1.0
)

// recoveryWindow is how many days after the 30d SMA re-crosses above the 60d
// SMA the ribbon still reads as a buy.
const recoveryWindow = 7

// sma computes the simple moving average of the last `period` values ending at
// index `end` (inclusive).
func sma(points []Point, end, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if end+1 < period || end >= len(points) {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := end + 1 - period; i <= end; i++ {
		sum += points[i].Value
	}
	return sum / float64(period), nil
}

// hashRibbon derives the ribbon state from a daily hash rate series: the 30d
// SMA below the 60d SMA reads as miner capitulation (sell); a re-cross above
// within the recovery window reads as a buy; anything else is neutral. The
// capitulation flag marks a buy that directly follows a capitulation phase.
func hashRibbon(series []Point) (state float64, capitulated bool, err error) {
	if len(series) < 60 {
		return 0, false, errors.New("hash rate series needs 60+ days")
	}

	last := len(series) - 1
	ma30, err := sma(series, last, 30)
	if err != nil {
		return 0, false, err
	}
	ma60, err := sma(series, last, 60)
	if err != nil {
		return 0, false, err
	}

	if ma30 < ma60 {
		return RibbonSell, false, nil
	}

	// Above: look back for a recent re-cross out of capitulation.
	for back := 1; back <= recoveryWindow && last-back >= 59; back++ {
		p30, err30 := sma(series, last-back, 30)
		p60, err60 := sma(series, last-back, 60)
		if err30 != nil || err60 != nil {
			break
		}
		if p30 < p60 {
			return RibbonBuy, true, nil
		}
	}
	return RibbonNeutral, false, nil
}

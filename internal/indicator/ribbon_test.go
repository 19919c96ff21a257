package indicator

import (
	"testing"
	"time"
)

func series(values []float64) []Point {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Time: base.AddDate(0, 0, i), Value: v}
	}
	return points
}

func flat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestSMA(t *testing.T) {
	points := series([]float64{1, 2, 3, 4, 5})

	got, err := sma(points, 4, 3)
	if err != nil {
		t.Fatalf("sma: %v", err)
	}
	if got != 4 {
		t.Errorf("sma of last 3: got %.2f, want 4", got)
	}

	if _, err := sma(points, 4, 6); err == nil {
		t.Error("period longer than series must fail")
	}
	if _, err := sma(points, 9, 3); err == nil {
		t.Error("end beyond series must fail")
	}
}

func TestHashRibbon_Sell(t *testing.T) {
	// 40 days of normal hash rate, then a 30-day collapse: 30d SMA under 60d.
	values := append(flat(100, 40), flat(10, 30)...)

	state, capitulated, err := hashRibbon(series(values))
	if err != nil {
		t.Fatalf("hash ribbon: %v", err)
	}
	if state != RibbonSell {
		t.Errorf("state: got %.0f, want sell", state)
	}
	if capitulated {
		t.Error("capitulation flag marks recoveries, not the collapse itself")
	}
}

func TestHashRibbon_BuyAfterRecovery(t *testing.T) {
	// Collapse followed by a sharp 10-day recovery: the 30d SMA re-crossed
	// above the 60d within the recovery window.
	values := append(flat(100, 40), flat(10, 20)...)
	values = append(values, flat(300, 10)...)

	state, capitulated, err := hashRibbon(series(values))
	if err != nil {
		t.Fatalf("hash ribbon: %v", err)
	}
	if state != RibbonBuy {
		t.Errorf("state: got %.0f, want buy", state)
	}
	if !capitulated {
		t.Error("a recovery out of capitulation must set the flag")
	}
}

func TestHashRibbon_NeutralOnSteadyGrowth(t *testing.T) {
	values := make([]float64, 120)
	for i := range values {
		values[i] = 100 + float64(i)
	}

	state, capitulated, err := hashRibbon(series(values))
	if err != nil {
		t.Fatalf("hash ribbon: %v", err)
	}
	if state != RibbonNeutral {
		t.Errorf("state: got %.0f, want neutral", state)
	}
	if capitulated {
		t.Error("steady growth is not a capitulation recovery")
	}
}

func TestHashRibbon_NeedsSixtyDays(t *testing.T) {
	if _, _, err := hashRibbon(series(flat(100, 59))); err == nil {
		t.Error("series under 60 days must fail")
	}
}

package signal

import (
	"math"
	"testing"
	"time"

	"BitcoinSentinel/internal/model"
)

func readingSet(values map[string]float64) model.ReadingSet {
	now := time.Now()
	set := model.ReadingSet{}
	for name, v := range values {
		set[name] = model.Reading{Name: name, Value: v, Timestamp: now}
	}
	return set
}

func TestScoreFedPolicy_RateBands(t *testing.T) {
	cases := []struct {
		rate float64
		want float64
	}{
		{0.25, 0.8},
		{2.00, 0.5},
		{4.25, 0.3},
		{5.50, 0.1},
	}
	for _, c := range cases {
		got := scoreFedPolicy(c.rate, model.ReadingSet{})
		if got != c.want {
			t.Errorf("rate %.2f: got %.2f, want %.2f", c.rate, got, c.want)
		}
	}
}

func TestScoreFedPolicy_PivotMultipliers(t *testing.T) {
	cases := []struct {
		name  string
		shift float64
		want  float64
	}{
		{"confirmed pivot into cuts", -0.60, 0.5 * 1.8}, // 1.5 + 0.6/2
		{"deep confirmed cuts capped", -2.00, 0.5 * 2.0}, // 1.5 + capped 0.5
		{"confirmed hiking", 0.80, 0.5 * 0.3},
		{"ongoing cuts without pivot", -0.30, 0.5 * 1.2},
		{"flat policy", 0.10, 0.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			set := readingSet(map[string]float64{model.IndicatorFedPivotShift: c.shift})
			got := scoreFedPolicy(2.0, set)
			if math.Abs(got-c.want) > 1e-9 {
				t.Errorf("shift %.2f: got %.3f, want %.3f", c.shift, got, c.want)
			}
		})
	}
}

func TestScoreExchangeReserves_Bands(t *testing.T) {
	cases := []struct {
		reserves float64
		want     float64
	}{
		{2.30e6, 1.0},
		{2.45e6, 0.7},
		{2.60e6, 0.4},
		{2.90e6, 0.2},
		{3.10e6, 0.0},
	}
	for _, c := range cases {
		got := scoreExchangeReserves(c.reserves, model.ReadingSet{})
		if got != c.want {
			t.Errorf("reserves %.0f: got %.2f, want %.2f", c.reserves, got, c.want)
		}
	}
}

func TestScoreM2Growth_BandsAndAcceleration(t *testing.T) {
	cases := []struct {
		name   string
		growth float64
		accel  *float64
		want   float64
	}{
		{"extreme expansion", 0.16, nil, 1.0},
		{"strong expansion", 0.12, nil, 0.8},
		{"normal expansion", 0.07, nil, 0.5},
		{"sluggish growth", 0.02, nil, 0.2},
		{"contraction", -0.01, nil, 0.0},
		{"acceleration bonus", 0.07, ptr(0.02), 0.6},
		{"acceleration bonus capped", 0.07, ptr(0.10), 0.7},
		{"deceleration penalty capped", 0.07, ptr(-0.10), 0.3},
		{"bonus clamps at one", 0.16, ptr(0.10), 1.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			set := model.ReadingSet{}
			if c.accel != nil {
				set = readingSet(map[string]float64{model.IndicatorM2Acceleration: *c.accel})
			}
			got := scoreM2Growth(c.growth, set)
			if math.Abs(got-c.want) > 1e-9 {
				t.Errorf("growth %.2f: got %.3f, want %.3f", c.growth, got, c.want)
			}
		})
	}
}

func TestScoreHashRibbon_States(t *testing.T) {
	cases := []struct {
		name        string
		state       float64
		capitulated bool
		want        float64
	}{
		{"buy", 1, false, 1.0},
		{"sell", -1, false, 0.0},
		{"neutral", 0, false, 0.4},
		{"buy after capitulation clamps", 1, true, 1.0},
		{"neutral after capitulation", 0, true, 0.7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			set := model.ReadingSet{}
			if c.capitulated {
				set = readingSet(map[string]float64{model.IndicatorMinerCapitulation: 1})
			}
			got := scoreHashRibbon(c.state, set)
			if math.Abs(got-c.want) > 1e-9 {
				t.Errorf("state %.0f: got %.3f, want %.3f", c.state, got, c.want)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

package plan

import (
	"errors"
	"math"
	"testing"
	"time"

	"BitcoinSentinel/internal/model"
)

var testScenario = model.Scenario{
	ID:        "fed_pivot",
	Threshold: 0.70,
	Indicators: []model.IndicatorWeight{
		{Name: model.IndicatorFedPolicy, Weight: 0.6},
		{Name: model.IndicatorExchangeReserves, Weight: 0.4},
	},
	EntrySchedule: []model.ScheduleEntry{
		{Offset: 0, Fraction: 0.40},
		{Offset: 24 * time.Hour, Fraction: 0.30},
		{Offset: 48 * time.Hour, Fraction: 0.20},
		{Offset: 72 * time.Hour, Fraction: 0.10},
	},
}

var moderate = model.RiskProfile{Name: "moderate", Base: 0.05, Max: 0.15}

func buyReading(score float64) *model.SignalReading {
	return &model.SignalReading{
		ScenarioID:    "fed_pivot",
		Timestamp:     time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
		CombinedScore: score,
		BuySignal:     true,
	}
}

func TestGenerate_SizingAndTranches(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 5, 0, 0, time.UTC)
	p, err := Generate(buyReading(0.70), testScenario, moderate, 100000, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// size = 0.05 + (0.15-0.05)*0.70 = 0.12
	if math.Abs(p.PositionSize-0.12) > 1e-9 {
		t.Errorf("position size: got %.4f, want 0.12", p.PositionSize)
	}
	if math.Abs(p.TotalNotional()-12000) > 1e-6 {
		t.Errorf("total notional: got %.2f, want 12000", p.TotalNotional())
	}

	wantNotionals := []float64{4800, 3600, 2400, 1200}
	wantOffsets := []time.Duration{0, 24 * time.Hour, 48 * time.Hour, 72 * time.Hour}
	if len(p.Tranches) != len(wantNotionals) {
		t.Fatalf("expected %d tranches, got %d", len(wantNotionals), len(p.Tranches))
	}
	for i, tr := range p.Tranches {
		if math.Abs(tr.Notional-wantNotionals[i]) > 1e-6 {
			t.Errorf("tranche %d notional: got %.2f, want %.2f", i, tr.Notional, wantNotionals[i])
		}
		if !tr.ScheduledAt.Equal(now.Add(wantOffsets[i])) {
			t.Errorf("tranche %d scheduled at %v, want offset %v", i, tr.ScheduledAt, wantOffsets[i])
		}
		if tr.Status != model.TranchePending {
			t.Errorf("tranche %d status: got %s, want pending", i, tr.Status)
		}
		if tr.Key != model.TrancheKey(p.ID, i) {
			t.Errorf("tranche %d key: got %s", i, tr.Key)
		}
	}
}

func TestGenerate_MaxScoreClampsToProfileMax(t *testing.T) {
	p, err := Generate(buyReading(1.0), testScenario, moderate, 100000, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p.PositionSize-moderate.Max) > 1e-9 {
		t.Errorf("position size: got %.4f, want %.4f", p.PositionSize, moderate.Max)
	}
}

func TestGenerate_DeterministicPlanID(t *testing.T) {
	a, err := Generate(buyReading(0.75), testScenario, moderate, 100000, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Generate(buyReading(0.75), testScenario, moderate, 100000, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same scenario and signal timestamp must regenerate the same plan id and
	// tranche keys, so a crashed run cannot duplicate the position.
	if a.ID != b.ID {
		t.Errorf("plan ids differ: %s vs %s", a.ID, b.ID)
	}
	for i := range a.Tranches {
		if a.Tranches[i].Key != b.Tranches[i].Key {
			t.Errorf("tranche %d keys differ: %s vs %s", i, a.Tranches[i].Key, b.Tranches[i].Key)
		}
	}
}

func TestGenerate_InvalidInputs(t *testing.T) {
	now := time.Now()
	noBuy := buyReading(0.5)
	noBuy.BuySignal = false
	outOfRange := buyReading(1.2)
	wrongScenario := buyReading(0.8)
	wrongScenario.ScenarioID = "m2_miner"

	cases := []struct {
		name      string
		reading   *model.SignalReading
		portfolio float64
	}{
		{"nil reading", nil, 100000},
		{"no buy signal", noBuy, 100000},
		{"score out of range", outOfRange, 100000},
		{"scenario mismatch", wrongScenario, 100000},
		{"zero portfolio", buyReading(0.8), 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Generate(c.reading, testScenario, moderate, c.portfolio, now)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("expected ErrInvalidSignal, got %v", err)
			}
		})
	}
}

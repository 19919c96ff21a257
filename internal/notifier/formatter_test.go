package notifier

import (
	"strings"
	"testing"
	"time"

	"BitcoinSentinel/internal/model"
)

func TestFormatPlanCreated(t *testing.T) {
	p := &model.TradePlan{
		ID:             "0f0e9aa1-plan",
		ScenarioID:     "fed_pivot",
		CreatedAt:      time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
		CombinedScore:  0.70,
		PositionSize:   0.12,
		PortfolioValue: 100000,
		Tranches: []model.Tranche{
			{Seq: 0, Notional: 4800, ScheduledAt: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)},
			{Seq: 1, Notional: 3600, ScheduledAt: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)},
		},
	}

	msg := FormatPlanCreated(p)
	for _, want := range []string{"fed_pivot", "12.0%", "$4,800", "$3,600", "$12,000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("plan message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatTrancheResult(t *testing.T) {
	tr := &model.Tranche{Key: "plan-1-00", Notional: 4800, Status: model.TrancheSkipped, Reason: "dailyLossLimit"}
	msg := FormatTrancheResult(tr, nil)
	if !strings.Contains(msg, "Skipped") || !strings.Contains(msg, "dailyLossLimit") {
		t.Errorf("skip message wrong:\n%s", msg)
	}

	tr.Status = model.TrancheFilled
	order := &model.Order{FillPrice: 62000, FillQty: 0.0774}
	msg = FormatTrancheResult(tr, order)
	if !strings.Contains(msg, "Filled") || !strings.Contains(msg, "$62,000") {
		t.Errorf("fill message wrong:\n%s", msg)
	}
}

func TestFormatStatus(t *testing.T) {
	state := model.SafetyState{
		Day:        "2026-03-01",
		DailyPnL:   -1500,
		Halted:     true,
		HaltReason: "daily loss limit",
	}
	msg := FormatStatus(state, 12000, 88000, 1)
	for _, want := range []string{"HALTED", "daily loss limit", "$12,000", "$88,000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("status message missing %q:\n%s", want, msg)
		}
	}
}

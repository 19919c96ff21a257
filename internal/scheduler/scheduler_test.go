package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"BitcoinSentinel/internal/exchange"
	"BitcoinSentinel/internal/indicator"
	"BitcoinSentinel/internal/ledger"
	"BitcoinSentinel/internal/model"
	"BitcoinSentinel/internal/notifier"
	"BitcoinSentinel/internal/safety"

	"github.com/rs/zerolog"
)

var testScenarios = []model.Scenario{
	{
		ID:        "fed_pivot",
		Name:      "Fed Pivot Accumulation",
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
	},
}

type fixture struct {
	sched  *Scheduler
	ledger *ledger.Ledger
	safety *safety.Manager
	sim    *exchange.Simulated
	static *indicator.StaticSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l, err := ledger.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	sm, err := safety.NewManager(l, safety.Limits{
		DailyLossLimit:       2000,
		ConsecutiveLossLimit: 3,
		MaxExposure:          0.15,
		SafetyMargin:         0.01,
		SlippageTolerance:    0.02,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new safety manager: %v", err)
	}

	// A deep easing cycle with scarce exchange supply: fed_pivot scores 1.0.
	static := indicator.NewStaticSource()
	static.FedRate = 0.9
	static.RateShift = -0.8
	static.Reserves = 2.30e6
	gw := indicator.NewGateway(static, static, zerolog.Nop())

	sim := exchange.NewSimulated(100000, gw.ReferencePrice)

	sched := New(context.Background(), gw, testScenarios, sm, l, sim, notifier.Noop{}, Config{
		AnalysisCron:     "0 0 6 * * *",
		ScanCron:         "0 * * * * *",
		RolloverCron:     "0 0 0 * * *",
		OrderTimeout:     5 * time.Second,
		MaxRetries:       2,
		DryRun:           true,
		PortfolioValue:   100000,
		MinOrderNotional: 10,
		Profile:          model.RiskProfile{Name: "moderate", Base: 0.05, Max: 0.15},
	}, zerolog.Nop())

	return &fixture{sched: sched, ledger: l, safety: sm, sim: sim, static: static}
}

// dueTranche inserts a single-tranche plan that is already due and returns it.
func dueTranche(t *testing.T, f *fixture, planID string, notional float64) model.Tranche {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	p := &model.TradePlan{
		ID: planID, ScenarioID: "fed_pivot", CreatedAt: now,
		CombinedScore: 0.8, PositionSize: 0.12, PortfolioValue: 100000,
		Tranches: []model.Tranche{{
			Key: model.TrancheKey(planID, 0), PlanID: planID,
			ScheduledAt: now, Fraction: 1, Notional: notional,
			Status: model.TranchePending,
		}},
	}
	if err := f.ledger.InsertPlan(p); err != nil {
		t.Fatalf("insert plan: %v", err)
	}
	return p.Tranches[0]
}

func trancheStatus(t *testing.T, f *fixture, key string) (model.TrancheStatus, string) {
	t.Helper()
	plans, err := f.ledger.OpenPlans()
	if err != nil {
		t.Fatalf("open plans: %v", err)
	}
	for _, p := range plans {
		for _, tr := range p.Tranches {
			if tr.Key == key {
				return tr.Status, tr.Reason
			}
		}
	}
	// Not open anymore: read the terminal state from the order trail.
	o, err := f.ledger.LatestOrder(key)
	if err != nil {
		t.Fatalf("latest order for %s: %v", key, err)
	}
	return model.TrancheStatus(o.Status), o.Reason
}

func TestExecuteTranche_Fills(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)

	f.sched.executeTranche(tr)

	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TrancheFilled {
		t.Fatalf("status: got %s, want filled", status)
	}
	if f.sim.SubmittedCount() != 1 {
		t.Errorf("submitted count: got %d, want 1", f.sim.SubmittedCount())
	}
}

func TestExecuteTranche_HaltedSkips(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)
	f.safety.Halt("maintenance")

	f.sched.executeTranche(tr)

	status, reason := trancheStatus(t, f, tr.Key)
	if status != model.TrancheSkipped {
		t.Fatalf("status: got %s, want skipped", status)
	}
	if reason != string(model.DenyHalted) {
		t.Errorf("reason: got %s, want halted", reason)
	}
	if f.sim.SubmittedCount() != 0 {
		t.Errorf("halted tranche must not reach the exchange, got %d submissions", f.sim.SubmittedCount())
	}
}

func TestExecuteTranche_MinNotionalSkips(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 5) // below the 10 minimum

	f.sched.executeTranche(tr)

	status, reason := trancheStatus(t, f, tr.Key)
	if status != model.TrancheSkipped || reason != string(model.DenyMinNotional) {
		t.Errorf("got %s/%s, want skipped/minNotional", status, reason)
	}
}

func TestExecuteTranche_RetriesTransientThenFills(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)
	f.sim.FailNext(exchange.ErrRateLimited, exchange.ErrRateLimited)

	f.sched.executeTranche(tr)

	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TrancheFilled {
		t.Fatalf("status after transient retries: got %s, want filled", status)
	}
	if f.sim.SubmittedCount() != 1 {
		t.Errorf("submitted count: got %d, want 1", f.sim.SubmittedCount())
	}
}

func TestExecuteTranche_ExhaustedRetriesFail(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)
	// MaxRetries 2 allows three attempts in total.
	f.sim.FailNext(exchange.ErrRateLimited, exchange.ErrRateLimited, exchange.ErrRateLimited)

	f.sched.executeTranche(tr)

	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TrancheFailed {
		t.Fatalf("status after exhausted retries: got %s, want failed", status)
	}
}

func TestExecuteTranche_PermanentErrorFailsFast(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)
	f.sim.FailNext(exchange.ErrRejected)

	f.sched.executeTranche(tr)

	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TrancheFailed {
		t.Fatalf("status: got %s, want failed", status)
	}
	if f.sim.SubmittedCount() != 0 {
		t.Errorf("rejection must not be retried, got %d submissions", f.sim.SubmittedCount())
	}
}

func TestRecover_AtMostOnceAcrossRestart(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)

	// Simulate a crash after the order reached the exchange but before
	// anything was recorded: the tranche is stuck executing with no
	// submission on record.
	now := time.Now().UTC()
	if _, err := f.ledger.Claim(tr.Key, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.sim.SubmitOrder(context.Background(), tr.Key, model.SideBuy, tr.Notional, model.OrderMarket); err != nil {
		t.Fatalf("pre-crash submit: %v", err)
	}

	if err := f.sched.Recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}

	// Without a recorded submission the tranche is released, not re-driven.
	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TranchePending {
		t.Fatalf("status after recovery: got %s, want pending", status)
	}

	// The next scan resubmits under the same idempotency key and observes
	// the original order instead of creating a second one.
	f.sched.executeTranche(tr)

	status, _ = trancheStatus(t, f, tr.Key)
	if status != model.TrancheFilled {
		t.Fatalf("status after retry: got %s, want filled", status)
	}
	if f.sim.SubmittedCount() != 1 {
		t.Errorf("retry must not duplicate the order, got %d submissions", f.sim.SubmittedCount())
	}
}

func TestRecover_FinishesRecordedSubmission(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)

	// Crash between recording the submission and recording the fill.
	now := time.Now().UTC()
	if _, err := f.ledger.Claim(tr.Key, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	res, err := f.sim.SubmitOrder(context.Background(), tr.Key, model.SideBuy, tr.Notional, model.OrderMarket)
	if err != nil {
		t.Fatalf("pre-crash submit: %v", err)
	}
	if err := f.ledger.RecordSubmitted(tr.Key, model.Order{
		TrancheKey: tr.Key, Side: model.SideBuy, Notional: tr.Notional,
		Type: model.OrderMarket, ExchangeOrderID: res.OrderID,
	}); err != nil {
		t.Fatalf("record submitted: %v", err)
	}

	if err := f.sched.Recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}

	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TrancheFilled {
		t.Fatalf("status after recovery: got %s, want filled", status)
	}
	if f.sim.SubmittedCount() != 1 {
		t.Errorf("recovery must not duplicate the order, got %d submissions", f.sim.SubmittedCount())
	}
}

func TestRecover_UnsubmittedTrancheRespectsHalt(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)

	// Crash between the claim and the safety checks, then a halt before the
	// process comes back up.
	if _, err := f.ledger.Claim(tr.Key, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.safety.Halt("maintenance")

	if err := f.sched.Recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if f.sim.SubmittedCount() != 0 {
		t.Fatalf("recovery must not submit an unauthorized tranche, got %d submissions", f.sim.SubmittedCount())
	}
	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TranchePending {
		t.Fatalf("status after recovery: got %s, want pending", status)
	}

	// The released tranche takes the normal path, where the halt denies it.
	f.sched.executeTranche(tr)

	status, reason := trancheStatus(t, f, tr.Key)
	if status != model.TrancheSkipped || reason != string(model.DenyHalted) {
		t.Errorf("got %s/%s, want skipped/halted", status, reason)
	}
	if f.sim.SubmittedCount() != 0 {
		t.Errorf("halted tranche must not reach the exchange, got %d submissions", f.sim.SubmittedCount())
	}
}

func TestExecuteTranche_TransientMarketDataReleases(t *testing.T) {
	f := newFixture(t)
	tr := dueTranche(t, f, "plan-1", 4800)
	f.static.Fail = map[string]error{"BitcoinPrice": context.DeadlineExceeded}

	f.sched.executeTranche(tr)

	status, _ := trancheStatus(t, f, tr.Key)
	if status != model.TranchePending {
		t.Fatalf("transient quote failure must release the claim, got %s", status)
	}
	if f.sim.SubmittedCount() != 0 {
		t.Errorf("no order may be submitted without market data, got %d submissions", f.sim.SubmittedCount())
	}

	// Once the data source recovers, the next scan fills it.
	f.static.Fail = nil
	f.sched.executeTranche(tr)

	status, _ = trancheStatus(t, f, tr.Key)
	if status != model.TrancheFilled {
		t.Fatalf("status after retry: got %s, want filled", status)
	}
	if f.sim.SubmittedCount() != 1 {
		t.Errorf("submitted count: got %d, want 1", f.sim.SubmittedCount())
	}
}

func TestAnalysisTask_CreatesPlanWithoutPyramiding(t *testing.T) {
	f := newFixture(t)

	f.sched.analysisTask()

	plans, err := f.ledger.OpenPlans()
	if err != nil {
		t.Fatalf("open plans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan from the buy signal, got %d", len(plans))
	}
	p := plans[0]
	if p.ScenarioID != "fed_pivot" {
		t.Errorf("scenario: got %s, want fed_pivot", p.ScenarioID)
	}
	// Combined score 1.0 sizes at the profile max.
	if p.PositionSize != 0.15 {
		t.Errorf("position size: got %.4f, want 0.15", p.PositionSize)
	}
	if len(p.Tranches) != 4 {
		t.Errorf("tranches: got %d, want 4", len(p.Tranches))
	}

	// A second run with the plan still open must not pyramid.
	f.sched.analysisTask()
	plans, err = f.ledger.OpenPlans()
	if err != nil {
		t.Fatalf("open plans: %v", err)
	}
	if len(plans) != 1 {
		t.Errorf("expected no pyramiding, got %d plans", len(plans))
	}
}

func TestAnalysisTask_NoBuyNoPlan(t *testing.T) {
	f := newFixture(t)
	// Weak conditions: neutral rates, plentiful reserves.
	f.static.FedRate = 5.5
	f.static.RateShift = 0
	f.static.Reserves = 3.1e6

	f.sched.analysisTask()

	plans, err := f.ledger.OpenPlans()
	if err != nil {
		t.Fatalf("open plans: %v", err)
	}
	if len(plans) != 0 {
		t.Errorf("expected no plan below threshold, got %d", len(plans))
	}
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.sched.HandleCommand("/halt pager incident")
	if !strings.Contains(reply, "HALTED") {
		t.Errorf("halt reply: %q", reply)
	}
	if !f.safety.State().Halted {
		t.Error("halt command must trip the safety manager")
	}

	reply = f.sched.HandleCommand("/resume")
	if f.safety.State().Halted {
		t.Error("resume command must clear the halt")
	}
	if !strings.Contains(reply, "resumed") {
		t.Errorf("resume reply: %q", reply)
	}

	if reply = f.sched.HandleCommand("/plans"); !strings.Contains(reply, "No open plans") {
		t.Errorf("plans reply: %q", reply)
	}
	if reply = f.sched.HandleCommand("/status"); !strings.Contains(reply, "Status") {
		t.Errorf("status reply: %q", reply)
	}
	if reply = f.sched.HandleCommand("/bogus"); !strings.Contains(reply, "/analyze") {
		t.Errorf("unknown command must return help, got %q", reply)
	}
}

func TestHandleCommand_PnlTripsHalt(t *testing.T) {
	f := newFixture(t)

	reply := f.sched.HandleCommand("/pnl -2100")
	if !strings.Contains(reply, "HALTED") {
		t.Errorf("loss past the daily limit must report the halt, got %q", reply)
	}
	if !f.safety.State().Halted {
		t.Error("loss past the daily limit must trip the halt")
	}

	if reply = f.sched.HandleCommand("/pnl nonsense"); !strings.Contains(reply, "Usage") {
		t.Errorf("bad amount must return usage, got %q", reply)
	}
}

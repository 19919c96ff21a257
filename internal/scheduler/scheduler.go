// Package scheduler wires the cron tasks together: periodic signal analysis,
// the tranche execution scan, and the daily safety rollover.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BitcoinSentinel/internal/exchange"
	"BitcoinSentinel/internal/indicator"
	"BitcoinSentinel/internal/ledger"
	"BitcoinSentinel/internal/model"
	"BitcoinSentinel/internal/notifier"
	"BitcoinSentinel/internal/plan"
	"BitcoinSentinel/internal/safety"
	"BitcoinSentinel/internal/signal"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds the scheduler's runtime knobs.
type Config struct {
	AnalysisCron     string
	ScanCron         string
	RolloverCron     string
	OrderTimeout     time.Duration
	MaxRetries       uint64
	DryRun           bool
	PortfolioValue   float64
	MinOrderNotional float64
	Profile          model.RiskProfile
}

// Scheduler runs all cron tasks and owns tranche execution.
type Scheduler struct {
	cron      *cron.Cron
	gateway   *indicator.Gateway
	scenarios []model.Scenario
	byID      map[string]model.Scenario
	safety    *safety.Manager
	ledger    *ledger.Ledger
	exchange  exchange.Adapter
	notifier  notifier.Notifier
	cfg       Config
	ctx       context.Context
	log       zerolog.Logger
}

// New creates a scheduler. Start registers the cron entries and runs restart
// recovery.
func New(ctx context.Context, gw *indicator.Gateway, scenarios []model.Scenario,
	sm *safety.Manager, l *ledger.Ledger, ex exchange.Adapter, n notifier.Notifier,
	cfg Config, log zerolog.Logger) *Scheduler {

	byID := make(map[string]model.Scenario, len(scenarios))
	for _, sc := range scenarios {
		byID[sc.ID] = sc
	}
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		gateway:   gw,
		scenarios: scenarios,
		byID:      byID,
		safety:    sm,
		ledger:    l,
		exchange:  ex,
		notifier:  n,
		cfg:       cfg,
		ctx:       ctx,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the cron tasks, recovers any interrupted tranches, and
// starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.AnalysisCron, s.analysisTask); err != nil {
		return fmt.Errorf("register analysis task: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.ScanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.RolloverCron, s.rolloverTask); err != nil {
		return fmt.Errorf("register rollover task: %w", err)
	}

	if err := s.Recover(); err != nil {
		return fmt.Errorf("recover interrupted tranches: %w", err)
	}

	s.cron.Start()
	s.log.Info().
		Str("analysis", s.cfg.AnalysisCron).
		Str("scan", s.cfg.ScanCron).
		Bool("dry_run", s.cfg.DryRun).
		Msg("scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunAnalysisNow triggers the analysis task immediately, used at startup and
// by the /analyze command.
func (s *Scheduler) RunAnalysisNow() {
	s.analysisTask()
}

// analysisTask collects a market snapshot, evaluates all scenarios, and turns
// the strongest buy signal into a persisted trade plan.
func (s *Scheduler) analysisTask() {
	now := time.Now().UTC()
	s.log.Info().Msg("running signal analysis")

	readings, err := s.gateway.Snapshot(s.ctx, now)
	if err != nil {
		// Partial snapshots are fine; evaluation fails per scenario when a
		// weighted indicator is missing.
		s.log.Warn().Err(err).Msg("snapshot incomplete")
	}

	reading, err := signal.Strongest(s.scenarios, readings, now)
	if err != nil {
		s.log.Error().Err(err).Msg("signal evaluation failed")
		s.trySend(fmt.Sprintf("❌ Signal analysis failed: %v", err))
		return
	}

	sc := s.byID[reading.ScenarioID]
	s.trySend(notifier.FormatAnalysisReport(reading, sc.Threshold))
	s.log.Info().
		Str("scenario", reading.ScenarioID).
		Float64("score", reading.CombinedScore).
		Bool("buy", reading.BuySignal).
		Msg("analysis complete")

	if !reading.BuySignal {
		return
	}
	if !s.mayOpenPlan(sc) {
		return
	}

	p, err := plan.Generate(reading, sc, s.cfg.Profile, s.cfg.PortfolioValue, now)
	if err != nil {
		s.log.Error().Err(err).Msg("plan generation failed")
		return
	}
	if err := s.ledger.InsertPlan(p); err != nil {
		s.log.Error().Err(err).Str("plan", p.ID).Msg("plan insert failed")
		return
	}

	s.log.Info().
		Str("plan", p.ID).
		Float64("size", p.PositionSize).
		Int("tranches", len(p.Tranches)).
		Msg("trade plan created")
	s.trySend(notifier.FormatPlanCreated(p))
}

// mayOpenPlan enforces one open plan per scenario plus the scenario's minimum
// hold period between consecutive plans.
func (s *Scheduler) mayOpenPlan(sc model.Scenario) bool {
	open, err := s.ledger.HasOpenPlan(sc.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("open plan check failed")
		return false
	}
	if open {
		s.log.Info().Str("scenario", sc.ID).Msg("plan already open, not pyramiding")
		return false
	}

	if sc.MinHold > 0 {
		last, err := s.ledger.LastPlanCreated(sc.ID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			// first plan for this scenario
		case err != nil:
			s.log.Error().Err(err).Msg("min hold check failed")
			return false
		case time.Since(last) < sc.MinHold:
			s.log.Info().
				Str("scenario", sc.ID).
				Time("last_plan", last).
				Dur("min_hold", sc.MinHold).
				Msg("inside minimum hold period")
			return false
		}
	}
	return true
}

// scanTask dispatches every due pending tranche. The atomic claim inside
// executeTranche makes double dispatch harmless.
func (s *Scheduler) scanTask() {
	due, err := s.ledger.DuePending(time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("due tranche scan failed")
		return
	}
	for _, t := range due {
		t := t
		go s.executeTranche(t)
	}
}

func (s *Scheduler) rolloverTask() {
	s.safety.RolloverDay(time.Now().UTC())
}

func (s *Scheduler) trySend(text string) {
	if err := s.notifier.SendWithRetry(s.ctx, text); err != nil {
		s.log.Error().Err(err).Msg("send notification failed")
	}
}

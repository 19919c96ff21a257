// Package safety is the risk gate in front of every tranche execution. The
// Manager owns the persisted SafetyState and is its only writer; all
// authorization runs through a single mutex so concurrent tranches can never
// jointly exceed the position limit.
package safety

import (
	"fmt"
	"math"
	"sync"
	"time"

	"BitcoinSentinel/internal/ledger"
	"BitcoinSentinel/internal/model"

	"github.com/rs/zerolog"
)

// Limits configures the circuit-breaker thresholds.
type Limits struct {
	DailyLossLimit       float64 // quote currency; deny once daily P&L <= -limit
	ConsecutiveLossLimit int
	MaxExposure          float64 // fraction of portfolio (risk profile max)
	SafetyMargin         float64 // fraction of notional kept as balance headroom
	SlippageTolerance    float64 // max |quote-reference|/reference for live orders
}

// Request carries everything a single authorization needs.
type Request struct {
	Tranche        model.Tranche
	Balance        float64
	QuotedPrice    float64
	ReferencePrice float64
	PortfolioValue float64
	Live           bool
	Now            time.Time
}

// Decision is the outcome of an authorization. A denial is an expected safety
// outcome, not an error.
type Decision struct {
	Authorized bool
	Reason     model.DenialReason
	Detail     string
}

func denied(reason model.DenialReason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Manager evaluates circuit-breaker conditions and tracks trade outcomes.
type Manager struct {
	mu     sync.Mutex
	state  *model.SafetyState
	ledger *ledger.Ledger
	limits Limits
	log    zerolog.Logger
}

// NewManager loads the persisted safety state and returns the process-wide
// manager.
func NewManager(l *ledger.Ledger, limits Limits, log zerolog.Logger) (*Manager, error) {
	state, err := l.LoadSafetyState()
	if err != nil {
		return nil, err
	}
	return &Manager{
		state:  state,
		ledger: l,
		limits: limits,
		log:    log.With().Str("component", "safety").Logger(),
	}, nil
}

// Authorize runs the ordered safety checks, short-circuiting on the first
// failure. It is the single serialized authorization path per account.
func (m *Manager) Authorize(req Request) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastEvaluated = req.Now
	defer m.persist()

	// 1. Global halt. Nothing else is evaluated while halted.
	if m.state.Halted {
		return denied(model.DenyHalted, "trading halted: %s", m.state.HaltReason), nil
	}

	// 2. Daily loss limit.
	dailyPnL, err := m.ledger.DailyPnL(req.Now)
	if err != nil {
		return Decision{}, fmt.Errorf("daily pnl check: %w", err)
	}
	if m.limits.DailyLossLimit > 0 && dailyPnL <= -m.limits.DailyLossLimit {
		return denied(model.DenyDailyLossLimit,
			"daily pnl %.2f breaches limit -%.2f", dailyPnL, m.limits.DailyLossLimit), nil
	}

	// 3. Consecutive losses.
	losses, err := m.ledger.ConsecutiveLosses()
	if err != nil {
		return Decision{}, fmt.Errorf("consecutive loss check: %w", err)
	}
	if m.limits.ConsecutiveLossLimit > 0 && losses >= m.limits.ConsecutiveLossLimit {
		return denied(model.DenyConsecutiveLosses,
			"%d consecutive losses (limit %d)", losses, m.limits.ConsecutiveLossLimit), nil
	}

	// 4. Position limit. Exposure includes executing tranches so concurrent
	// claims cannot jointly overshoot; the requesting tranche is excluded
	// because its own claim already counts it as executing.
	exposure, err := m.ledger.OpenExposure(req.Tranche.Key)
	if err != nil {
		return Decision{}, fmt.Errorf("exposure check: %w", err)
	}
	maxNotional := m.limits.MaxExposure * req.PortfolioValue
	if exposure+req.Tranche.Notional > maxNotional+1e-6 {
		return denied(model.DenyPositionLimit,
			"exposure %.2f + tranche %.2f exceeds max %.2f", exposure, req.Tranche.Notional, maxNotional), nil
	}

	// 5. Balance sufficiency.
	required := req.Tranche.Notional * (1 + m.limits.SafetyMargin)
	if req.Balance < required {
		return denied(model.DenyInsufficientBalance,
			"balance %.2f below required %.2f", req.Balance, required), nil
	}

	// 6. Slippage guard, live orders only.
	if req.Live && req.ReferencePrice > 0 {
		deviation := math.Abs(req.QuotedPrice-req.ReferencePrice) / req.ReferencePrice
		if deviation > m.limits.SlippageTolerance {
			return denied(model.DenySlippage,
				"quote %.2f deviates %.2f%% from reference %.2f", req.QuotedPrice, deviation*100, req.ReferencePrice), nil
		}
	}

	return Decision{Authorized: true}, nil
}

// RecordTradeResult folds a closed position's realized P&L into the safety
// counters and trips the circuit breaker when a limit is crossed. The halt
// flag set here is only ever cleared by ResetHalt.
func (m *Manager) RecordTradeResult(pnl float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.RecordRealized(pnl, now); err != nil {
		return err
	}

	day := now.UTC().Format("2006-01-02")
	if m.state.Day != day {
		m.state.Day = day
		m.state.DailyPnL = 0
	}
	m.state.DailyPnL += pnl
	if pnl < 0 {
		m.state.ConsecutiveLosses++
	} else {
		m.state.ConsecutiveLosses = 0
	}

	if m.limits.DailyLossLimit > 0 && m.state.DailyPnL <= -m.limits.DailyLossLimit && !m.state.Halted {
		m.halt(fmt.Sprintf("daily loss limit: pnl %.2f", m.state.DailyPnL))
	}
	if m.limits.ConsecutiveLossLimit > 0 && m.state.ConsecutiveLosses >= m.limits.ConsecutiveLossLimit && !m.state.Halted {
		m.halt(fmt.Sprintf("consecutive loss limit: %d losses", m.state.ConsecutiveLosses))
	}

	m.log.Info().
		Float64("pnl", pnl).
		Float64("daily_pnl", m.state.DailyPnL).
		Int("consecutive_losses", m.state.ConsecutiveLosses).
		Msg("trade result recorded")
	m.persist()
	return nil
}

// Halt stops all future authorizations until an explicit reset.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halt(reason)
	m.persist()
}

func (m *Manager) halt(reason string) {
	m.state.Halted = true
	m.state.HaltReason = reason
	m.log.Warn().Str("reason", reason).Msg("trading halted")
}

// ResetHalt clears the halt flag. Operator action only; the scheduler never
// calls this.
func (m *Manager) ResetHalt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Halted = false
	m.state.HaltReason = ""
	m.log.Info().Msg("trading halt reset")
	m.persist()
}

// RolloverDay resets the daily counters at the start of a new UTC day. The
// halt flag is untouched.
func (m *Manager) RolloverDay(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := now.UTC().Format("2006-01-02")
	if m.state.Day == day {
		return
	}
	m.state.Day = day
	m.state.DailyPnL = 0
	m.log.Info().Str("day", day).Msg("daily safety counters reset")
	m.persist()
}

// State returns a copy of the current safety state.
func (m *Manager) State() model.SafetyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

func (m *Manager) persist() {
	if err := m.ledger.SaveSafetyState(m.state); err != nil {
		m.log.Error().Err(err).Msg("failed to persist safety state")
	}
}

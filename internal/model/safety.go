package model

import "time"

// DenialReason codes why the safety manager refused a tranche.
type DenialReason string

const (
	DenyHalted              DenialReason = "halted"
	DenyDailyLossLimit      DenialReason = "dailyLossLimit"
	DenyConsecutiveLosses   DenialReason = "consecutiveLosses"
	DenyPositionLimit       DenialReason = "positionLimit"
	DenyInsufficientBalance DenialReason = "insufficientBalance"
	DenySlippage            DenialReason = "slippage"

	// DenyMinNotional skips dust tranches below the exchange minimum order
	// size before any safety evaluation runs.
	DenyMinNotional DenialReason = "minNotional"
)

// SafetyState is the process-wide circuit-breaker state. The safety manager is
// its only writer; it is persisted on every mutation and the halt flag is
// cleared only by an explicit operator reset.
type SafetyState struct {
	Day               string  // UTC date the daily counters belong to, "2006-01-02"
	DailyPnL          float64 // realized P&L for Day
	ConsecutiveLosses int
	Halted            bool
	HaltReason        string
	LastEvaluated     time.Time
	UpdatedAt         time.Time
}

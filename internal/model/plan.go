package model

import (
	"fmt"
	"time"
)

// TrancheStatus is the execution state of a single tranche.
type TrancheStatus string

const (
	TranchePending   TrancheStatus = "pending"
	TrancheExecuting TrancheStatus = "executing"
	TrancheFilled    TrancheStatus = "filled"
	TrancheSkipped   TrancheStatus = "skipped"
	TrancheFailed    TrancheStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TrancheStatus) Terminal() bool {
	return s == TrancheFilled || s == TrancheSkipped || s == TrancheFailed
}

// Tranche is one scheduled partial execution of a trade plan. Only the
// execution scheduler mutates its status, and only forward.
type Tranche struct {
	Key         string // idempotency key: "<planID>-<seq>"
	PlanID      string
	Seq         int
	ScheduledAt time.Time
	Fraction    float64
	Notional    float64 // requested value in quote currency
	Status      TrancheStatus
	Reason      string // denial or failure reason code, if any
}

// TrancheKey derives the deterministic idempotency key for a plan tranche.
func TrancheKey(planID string, seq int) string {
	return fmt.Sprintf("%s-%02d", planID, seq)
}

// TradePlan is a triggered signal turned into a fixed sequence of timed
// tranches. The tranche set never changes after creation.
type TradePlan struct {
	ID             string
	ScenarioID     string
	CreatedAt      time.Time
	CombinedScore  float64
	PositionSize   float64 // fraction of portfolio, 0 < size <= profile max
	PortfolioValue float64
	Tranches       []Tranche
}

// TotalNotional is the full planned position value in quote currency.
func (p *TradePlan) TotalNotional() float64 {
	return p.PositionSize * p.PortfolioValue
}

// Open reports whether any tranche is still pending or executing.
func (p *TradePlan) Open() bool {
	for _, t := range p.Tranches {
		if !t.Status.Terminal() {
			return true
		}
	}
	return false
}

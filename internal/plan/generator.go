// Package plan turns a triggered signal into a fixed sequence of timed
// tranches sized by the active risk profile.
package plan

import (
	"errors"
	"fmt"
	"time"

	"BitcoinSentinel/internal/model"

	"github.com/google/uuid"
)

// ErrInvalidSignal marks a generation precondition violation: no buy signal or
// a combined score outside [0,1]. This is a programming or configuration
// error, never retried.
var ErrInvalidSignal = errors.New("invalid signal for plan generation")

// planNamespace scopes the UUIDv5 derivation of plan IDs.
var planNamespace = uuid.MustParse("9f2c1c5e-7a64-4c09-a1d3-5b8f0e6d2c41")

// Generate builds a trade plan from a buy signal. Generation is deterministic
// for identical inputs, except CreatedAt, so a crashed run regenerates the
// same plan id and tranche keys instead of duplicating the position.
func Generate(reading *model.SignalReading, sc model.Scenario, profile model.RiskProfile,
	portfolioValue float64, now time.Time) (*model.TradePlan, error) {

	if reading == nil || !reading.BuySignal {
		return nil, fmt.Errorf("buy signal not set: %w", ErrInvalidSignal)
	}
	if reading.CombinedScore < 0 || reading.CombinedScore > 1 {
		return nil, fmt.Errorf("combined score %.4f outside [0,1]: %w", reading.CombinedScore, ErrInvalidSignal)
	}
	if reading.ScenarioID != sc.ID {
		return nil, fmt.Errorf("signal is for scenario %s, not %s: %w", reading.ScenarioID, sc.ID, ErrInvalidSignal)
	}
	if portfolioValue <= 0 {
		return nil, fmt.Errorf("portfolio value must be positive: %w", ErrInvalidSignal)
	}

	// Size scales linearly with signal strength between the profile's base
	// and max allocation.
	size := profile.Base + (profile.Max-profile.Base)*reading.CombinedScore
	if size > profile.Max {
		size = profile.Max
	}

	planID := uuid.NewSHA1(planNamespace,
		[]byte(sc.ID+"|"+reading.Timestamp.UTC().Format(time.RFC3339))).String()

	total := portfolioValue * size
	tranches := make([]model.Tranche, len(sc.EntrySchedule))
	for i, entry := range sc.EntrySchedule {
		tranches[i] = model.Tranche{
			Key:         model.TrancheKey(planID, i),
			PlanID:      planID,
			Seq:         i,
			ScheduledAt: now.Add(entry.Offset),
			Fraction:    entry.Fraction,
			Notional:    total * entry.Fraction,
			Status:      model.TranchePending,
		}
	}

	return &model.TradePlan{
		ID:             planID,
		ScenarioID:     sc.ID,
		CreatedAt:      now,
		CombinedScore:  reading.CombinedScore,
		PositionSize:   size,
		PortfolioValue: portfolioValue,
		Tranches:       tranches,
	}, nil
}

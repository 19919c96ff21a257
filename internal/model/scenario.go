package model

import (
	"fmt"
	"math"
	"time"
)

const fractionEpsilon = 1e-6

// IndicatorWeight pairs an indicator with its weight in the combined score.
type IndicatorWeight struct {
	Name   string
	Weight float64
}

// ScheduleEntry is one timed slice of a scenario's entry schedule.
type ScheduleEntry struct {
	Offset   time.Duration
	Fraction float64
}

// Scenario is an immutable investment thesis: which indicators to score, how to
// weight them, when a buy triggers, and how entries are spread over time.
type Scenario struct {
	ID            string
	Name          string
	Indicators    []IndicatorWeight
	Threshold     float64
	EntrySchedule []ScheduleEntry
	MinHold       time.Duration
}

// Validate checks the structural invariants of a scenario definition.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario id is required")
	}
	if s.Threshold <= 0 || s.Threshold >= 1 {
		return fmt.Errorf("scenario %s: threshold must be in (0,1), got %.3f", s.ID, s.Threshold)
	}
	if len(s.Indicators) == 0 {
		return fmt.Errorf("scenario %s: at least one indicator is required", s.ID)
	}
	weightSum := 0.0
	for _, iw := range s.Indicators {
		if iw.Weight < 0 {
			return fmt.Errorf("scenario %s: indicator %s has negative weight", s.ID, iw.Name)
		}
		weightSum += iw.Weight
	}
	if math.Abs(weightSum-1.0) > fractionEpsilon {
		return fmt.Errorf("scenario %s: indicator weights sum to %.6f, want 1.0", s.ID, weightSum)
	}
	if len(s.EntrySchedule) == 0 {
		return fmt.Errorf("scenario %s: entry schedule is empty", s.ID)
	}
	fracSum := 0.0
	prevOffset := time.Duration(-1)
	for i, e := range s.EntrySchedule {
		if e.Fraction <= 0 {
			return fmt.Errorf("scenario %s: entry %d has non-positive fraction", s.ID, i)
		}
		if e.Offset <= prevOffset {
			return fmt.Errorf("scenario %s: entry offsets must be strictly increasing", s.ID)
		}
		prevOffset = e.Offset
		fracSum += e.Fraction
	}
	if math.Abs(fracSum-1.0) > fractionEpsilon {
		return fmt.Errorf("scenario %s: entry fractions sum to %.6f, want 1.0", s.ID, fracSum)
	}
	return nil
}

// RiskProfile bounds position sizing for one risk appetite.
type RiskProfile struct {
	Name string
	Base float64
	Max  float64
}

// Validate checks the sizing bounds.
func (p *RiskProfile) Validate() error {
	if p.Base <= 0 || p.Base > 1 {
		return fmt.Errorf("risk profile %s: base must be in (0,1], got %.3f", p.Name, p.Base)
	}
	if p.Max < p.Base || p.Max > 1 {
		return fmt.Errorf("risk profile %s: max must be in [base,1], got %.3f", p.Name, p.Max)
	}
	return nil
}

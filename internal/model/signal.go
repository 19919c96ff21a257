package model

import "time"

// ComponentScore is one indicator's contribution to a signal.
type ComponentScore struct {
	Indicator string
	RawValue  float64
	Score     float64 // normalized to [0,1]
	Weight    float64
}

// SignalReading is the immutable result of evaluating one scenario at a point
// in time.
type SignalReading struct {
	ScenarioID    string
	Timestamp     time.Time
	Components    []ComponentScore
	CombinedScore float64
	BuySignal     bool
}

// Strength buckets the combined score for operator reports.
func (s *SignalReading) Strength() string {
	switch {
	case s.CombinedScore >= 0.8:
		return "very_strong"
	case s.CombinedScore >= 0.6:
		return "strong"
	case s.CombinedScore >= 0.4:
		return "moderate"
	default:
		return "weak"
	}
}

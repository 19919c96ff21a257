// Package signal scores scenarios against indicator readings. Evaluation is
// side-effect free so the same code drives live analysis and historical
// backtests.
package signal

import (
	"errors"
	"fmt"
	"time"

	"BitcoinSentinel/internal/indicator"
	"BitcoinSentinel/internal/model"
)

// Evaluate computes the scenario's signal from the given readings. Every
// weighted indicator must be present; auxiliary readings only refine scores.
func Evaluate(sc model.Scenario, readings model.ReadingSet, asOf time.Time) (*model.SignalReading, error) {
	components := make([]model.ComponentScore, 0, len(sc.Indicators))
	combined := 0.0

	for _, iw := range sc.Indicators {
		r, ok := readings.Get(iw.Name)
		if !ok {
			return nil, fmt.Errorf("scenario %s: indicator %s missing at %s: %w",
				sc.ID, iw.Name, asOf.Format(time.RFC3339), indicator.ErrDataUnavailable)
		}
		normalize, ok := normalizers[iw.Name]
		if !ok {
			return nil, fmt.Errorf("scenario %s: no normalization rule for indicator %s", sc.ID, iw.Name)
		}
		score := normalize(r.Value, readings)
		components = append(components, model.ComponentScore{
			Indicator: iw.Name,
			RawValue:  r.Value,
			Score:     score,
			Weight:    iw.Weight,
		})
		combined += score * iw.Weight
	}

	return &model.SignalReading{
		ScenarioID:    sc.ID,
		Timestamp:     asOf,
		Components:    components,
		CombinedScore: combined,
		BuySignal:     combined >= sc.Threshold,
	}, nil
}

// Strongest evaluates all scenarios and returns the one with the highest
// combined score, ties broken by lowest scenario id. Scenarios whose data is
// unavailable are skipped; an error is returned only when none are evaluable.
func Strongest(scenarios []model.Scenario, readings model.ReadingSet, asOf time.Time) (*model.SignalReading, error) {
	var best *model.SignalReading
	var errs []error

	for _, sc := range scenarios {
		reading, err := Evaluate(sc, readings, asOf)
		if err != nil {
			if errors.Is(err, indicator.ErrDataUnavailable) {
				errs = append(errs, err)
				continue
			}
			return nil, err
		}
		if best == nil ||
			reading.CombinedScore > best.CombinedScore ||
			(reading.CombinedScore == best.CombinedScore && reading.ScenarioID < best.ScenarioID) {
			best = reading
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no scenario evaluable: %w", errors.Join(errs...))
	}
	return best, nil
}

package config

import (
	"fmt"
	"os"

	"BitcoinSentinel/internal/model"

	"gopkg.in/yaml.v3"
)

// YAML shapes for scenario definitions. Durations are strings like "24h" and
// converted to time.Duration during load.
type scenarioFile struct {
	Scenarios []scenarioSection `yaml:"scenarios"`
}

type scenarioSection struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	Threshold  float64            `yaml:"threshold"`
	MinHold    Duration           `yaml:"min_hold"`
	Indicators []indicatorSection `yaml:"indicators"`
	Schedule   []scheduleSection  `yaml:"entry_schedule"`
}

type indicatorSection struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

type scheduleSection struct {
	Offset   Duration `yaml:"offset"`
	Fraction float64  `yaml:"fraction"`
}

// LoadScenarios reads and validates the scenario definitions.
func LoadScenarios(path string) ([]model.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes scenario YAML and validates every scenario.
func ParseScenarios(data []byte) ([]model.Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios defined")
	}

	seen := make(map[string]bool, len(file.Scenarios))
	out := make([]model.Scenario, 0, len(file.Scenarios))
	for _, sec := range file.Scenarios {
		if seen[sec.ID] {
			return nil, fmt.Errorf("duplicate scenario id %q", sec.ID)
		}
		seen[sec.ID] = true

		sc := model.Scenario{
			ID:        sec.ID,
			Name:      sec.Name,
			Threshold: sec.Threshold,
			MinHold:   sec.MinHold.Std(),
		}
		for _, iw := range sec.Indicators {
			sc.Indicators = append(sc.Indicators, model.IndicatorWeight{Name: iw.Name, Weight: iw.Weight})
		}
		for _, e := range sec.Schedule {
			sc.EntrySchedule = append(sc.EntrySchedule, model.ScheduleEntry{
				Offset:   e.Offset.Std(),
				Fraction: e.Fraction,
			})
		}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

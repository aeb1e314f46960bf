// Package scenarios runs YAML described charging scenarios against the
// coordinator and checks the resulting hub and session state.
package scenarios

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/evhub/core/events"
	"github.com/kilianp07/evhub/core/fleet"
	"github.com/kilianp07/evhub/infra/hubspec"
)

type HubExpectation struct {
	Occupancy *int     `yaml:"occupancy"`
	EnergyJ   *float64 `yaml:"energy_j"`
}

type Expected struct {
	Hubs          map[string]HubExpectation `yaml:"hubs"`
	OpenSessions  int                       `yaml:"open_sessions"`
	EndedSessions int                       `yaml:"ended_sessions"`
	Misses        int                       `yaml:"misses"`
	// Error is a substring of the error that stops the scenario. Empty
	// means every event must apply cleanly.
	Error string `yaml:"error"`
}

type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Policy      string           `yaml:"policy"`
	TargetSoC   float64          `yaml:"target_soc"`
	Hubs        []hubspec.Record `yaml:"hubs"`
	Vehicles    []fleet.Spec     `yaml:"vehicles"`
	Events      []map[string]any `yaml:"events"`
	Expected    Expected         `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// DecodeEvents converts the YAML event maps into typed events.
func (sc *Scenario) DecodeEvents() ([]events.Event, error) {
	out := make([]events.Event, 0, len(sc.Events))
	for i, raw := range sc.Events {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		ev, err := events.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

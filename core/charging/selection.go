package charging

import (
	"github.com/kilianp07/evhub/core/factory"
)

// SelectionPolicy picks one charger among several free candidates. The
// candidates slice is never empty and is ordered by registration sequence.
type SelectionPolicy interface {
	Select(candidates []ChargerState) ChargerState
}

// FirstAvailable picks the charger registered first: hubs in load order,
// then chargers by index within the hub.
type FirstAvailable struct{}

func (FirstAvailable) Select(candidates []ChargerState) ChargerState {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Seq < best.Seq {
			best = c
		}
	}
	return best
}

// LeastEnergy spreads wear by picking the charger with the lowest
// cumulative energy. Ties fall back to registration order.
type LeastEnergy struct{}

func (LeastEnergy) Select(candidates []ChargerState) ChargerState {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CumulativeJ < best.CumulativeJ || (c.CumulativeJ == best.CumulativeJ && c.Seq < best.Seq) {
			best = c
		}
	}
	return best
}

// Policy names accepted by NewSelectionPolicy.
const (
	PolicyFirst       = "first"
	PolicyLeastEnergy = "least_energy"
)

// SelectionPolicies holds the policy constructors.
var SelectionPolicies = factory.NewRegistry[SelectionPolicy]()

func init() {
	SelectionPolicies.MustRegister(PolicyFirst, func(map[string]any) (SelectionPolicy, error) {
		return FirstAvailable{}, nil
	})
	SelectionPolicies.MustRegister(PolicyLeastEnergy, func(map[string]any) (SelectionPolicy, error) {
		return LeastEnergy{}, nil
	})
}

// NewSelectionPolicy builds a policy by name. An empty name selects
// PolicyFirst.
func NewSelectionPolicy(name string) (SelectionPolicy, error) {
	if name == "" {
		name = PolicyFirst
	}
	return SelectionPolicies.Create(factory.ModuleConfig{Type: name})
}

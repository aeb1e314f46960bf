package fleet

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotFound reports an unknown vehicle id.
	ErrNotFound = errors.New("vehicle not found")
	// ErrInvalid reports an unusable vehicle specification.
	ErrInvalid = errors.New("invalid vehicle")
)

// Spec registers a vehicle with the fleet.
type Spec struct {
	ID         string   `json:"id" yaml:"id"`
	Plugs      []string `json:"plugs" yaml:"plugs"`
	CapacityJ  float64  `json:"capacity_j" yaml:"capacity_j"`
	InitialSoC float64  `json:"initial_soc" yaml:"initial_soc"`
}

// EvModel is the dynamic state of one electric vehicle. Values returned by
// the Fleet are copies.
type EvModel struct {
	ID          string   `json:"id"`
	Plugs       []string `json:"plugs"`
	CapacityJ   float64  `json:"capacity_j"`
	SoC         float64  `json:"soc"`
	EnergyJ     float64  `json:"energy_j"`
	LastSoC     float64  `json:"last_soc"`
	LastEnergyJ float64  `json:"last_energy_j"`
	DistanceM   float64  `json:"distance_m"`
	State       State    `json:"state"`
	Version     uint64   `json:"version"`
	Dirty       bool     `json:"dirty"`
}

type record struct {
	ev        EvModel
	published uint64
}

func (r *record) view() EvModel {
	v := r.ev
	v.Plugs = append([]string(nil), r.ev.Plugs...)
	v.Dirty = r.ev.Version > r.published
	return v
}

// Fleet stores the vehicles of one simulation run.
type Fleet struct {
	mu   sync.RWMutex
	data map[string]*record
}

// New returns an empty fleet.
func New() *Fleet {
	return &Fleet{data: map[string]*record{}}
}

// Register adds a vehicle. Registering an existing id fails.
func (f *Fleet) Register(s Spec) error {
	if s.ID == "" {
		return fmt.Errorf("empty vehicle id: %w", ErrInvalid)
	}
	if s.CapacityJ <= 0 {
		return fmt.Errorf("vehicle %s capacity %.0f J: %w", s.ID, s.CapacityJ, ErrInvalid)
	}
	soc := clamp01(s.InitialSoC)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[s.ID]; ok {
		return fmt.Errorf("vehicle %s already registered: %w", s.ID, ErrInvalid)
	}
	f.data[s.ID] = &record{ev: EvModel{
		ID:          s.ID,
		Plugs:       append([]string(nil), s.Plugs...),
		CapacityJ:   s.CapacityJ,
		SoC:         soc,
		EnergyJ:     soc * s.CapacityJ,
		LastSoC:     soc,
		LastEnergyJ: soc * s.CapacityJ,
		State:       Idle,
	}}
	return nil
}

// Len returns the number of registered vehicles.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data)
}

// Get returns a copy of the vehicle state.
func (f *Fleet) Get(id string) (EvModel, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.data[id]
	if !ok {
		return EvModel{}, fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	return r.view(), nil
}

// PlugTypes returns the plug types the vehicle accepts.
func (f *Fleet) PlugTypes(id string) ([]string, error) {
	ev, err := f.Get(id)
	if err != nil {
		return nil, err
	}
	return ev.Plugs, nil
}

// update applies fn under the write lock and bumps the version when fn
// reports a change.
func (f *Fleet) update(id string, fn func(*EvModel) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.data[id]
	if !ok {
		return fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	if fn(&r.ev) {
		r.ev.Version++
	}
	return nil
}

// SetState changes the discrete state.
func (f *Fleet) SetState(id string, s State) error {
	return f.update(id, func(ev *EvModel) bool {
		if ev.State == s {
			return false
		}
		ev.State = s
		return true
	})
}

// AddDistance adds meters travelled. Non-positive values are ignored.
func (f *Fleet) AddDistance(id string, meters float64) error {
	return f.update(id, func(ev *EvModel) bool {
		if meters <= 0 {
			return false
		}
		ev.DistanceM += meters
		return true
	})
}

// UpdateEnergy records a new sample from the consumption model. The
// previous values are kept as the last sample. A negative energyJ is
// derived from soc.
func (f *Fleet) UpdateEnergy(id string, soc, energyJ float64) error {
	return f.update(id, func(ev *EvModel) bool {
		soc = clamp01(soc)
		if energyJ < 0 {
			energyJ = soc * ev.CapacityJ
		}
		if energyJ > ev.CapacityJ {
			energyJ = ev.CapacityJ
		}
		if soc == ev.SoC && energyJ == ev.EnergyJ {
			return false
		}
		ev.LastSoC, ev.LastEnergyJ = ev.SoC, ev.EnergyJ
		ev.SoC, ev.EnergyJ = soc, energyJ
		return true
	})
}

// AddEnergy books energy received from a charger, capped at capacity.
func (f *Fleet) AddEnergy(id string, deltaJ float64) error {
	return f.update(id, func(ev *EvModel) bool {
		if deltaJ <= 0 || ev.EnergyJ >= ev.CapacityJ {
			return false
		}
		ev.LastSoC, ev.LastEnergyJ = ev.SoC, ev.EnergyJ
		ev.EnergyJ += deltaJ
		if ev.EnergyJ > ev.CapacityJ {
			ev.EnergyJ = ev.CapacityJ
		}
		ev.SoC = ev.EnergyJ / ev.CapacityJ
		return true
	})
}

// Views returns the vehicles ordered by id. With dirtyOnly set, clean
// vehicles are left out.
func (f *Fleet) Views(dirtyOnly bool) []EvModel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	res := make([]EvModel, 0, len(f.data))
	for _, r := range f.data {
		if dirtyOnly && r.ev.Version <= r.published {
			continue
		}
		res = append(res, r.view())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Ack raises the published watermark of each listed vehicle to the given
// version. Older versions are ignored.
func (f *Fleet) Ack(versions map[string]uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, v := range versions {
		if r, ok := f.data[id]; ok && v > r.published {
			r.published = v
		}
	}
}

// ResetDirty marks every vehicle as published.
func (f *Fleet) ResetDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.data {
		r.published = r.ev.Version
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

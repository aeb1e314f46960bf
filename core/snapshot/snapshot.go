// Package snapshot builds full and delta views of the charging state for
// the telemetry publisher.
//
// A delta contains the hubs, chargers and vehicles whose version moved past
// the last acknowledged one. Ack only acknowledges what a snapshot actually
// captured, so a mutation racing with a publish is re-sent on the next
// cycle.
package snapshot

import (
	"time"

	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/fleet"
)

// ChargerView is the published state of one charger.
type ChargerView struct {
	Occupied         bool     `json:"occupied"`
	Active           bool     `json:"active"`
	CumulativeEnergy float64  `json:"cumulativeEnergy"`
	CurrentInterval  float64  `json:"currentIntervalEnergy"`
	OccupyingVehicle *string  `json:"occupyingVehicleId,omitempty"`
	PowerW           float64  `json:"powerW"`
	Plugs            []string `json:"plugs,omitempty"`
}

// HubView is the published state of one hub.
type HubView struct {
	ID          string                 `json:"id"`
	LinkID      string                 `json:"linkId"`
	TotalEnergy float64                `json:"totalEnergy"`
	Occupancy   int                    `json:"occupancy"`
	Capacity    int                    `json:"capacity"`
	Chargers    map[string]ChargerView `json:"chargers"`
}

// VehicleView is the published state of one vehicle.
type VehicleView struct {
	ID               string  `json:"id"`
	SoC              float64 `json:"soc"`
	DistanceTraveled float64 `json:"distanceTraveled"`
	Energy           float64 `json:"energy"`
	State            string  `json:"state"`
}

type hubMark struct {
	version  uint64
	chargers map[string]uint64
}

// Snapshot is one consistent-per-hub capture of the engine state.
type Snapshot struct {
	Full     bool          `json:"full"`
	TakenAt  time.Time     `json:"takenAt"`
	Hubs     []HubView     `json:"hubs"`
	Vehicles []VehicleView `json:"vehicles"`

	hubs     map[string]hubMark
	vehicles map[string]uint64
}

// Empty reports whether the snapshot carries nothing.
func (s Snapshot) Empty() bool { return len(s.Hubs) == 0 && len(s.Vehicles) == 0 }

// Intervals returns the interval energy captured for each charger.
func (s Snapshot) Intervals() map[string]float64 {
	out := make(map[string]float64)
	for _, h := range s.Hubs {
		for id, c := range h.Chargers {
			out[id] = c.CurrentInterval
		}
	}
	return out
}

// Builder reads the registry and the fleet.
type Builder struct {
	registry *charging.Registry
	fleet    *fleet.Fleet
	now      func() time.Time
}

// NewBuilder returns a builder. fl may be nil when vehicles are not
// tracked.
func NewBuilder(reg *charging.Registry, fl *fleet.Fleet) *Builder {
	return &Builder{registry: reg, fleet: fl, now: time.Now}
}

// Full captures every hub, charger and vehicle.
func (b *Builder) Full() Snapshot { return b.build(false) }

// Delta captures only the entities changed since the last Ack or reset.
func (b *Builder) Delta() Snapshot { return b.build(true) }

func (b *Builder) build(delta bool) Snapshot {
	snap := Snapshot{
		Full:     !delta,
		TakenAt:  b.now(),
		Hubs:     []HubView{},
		Vehicles: []VehicleView{},
		hubs:     make(map[string]hubMark),
		vehicles: make(map[string]uint64),
	}
	for _, h := range b.registry.Hubs() {
		st, ok := h.State(delta)
		if !ok {
			continue
		}
		view := HubView{
			ID:          st.ID,
			LinkID:      st.LinkID,
			TotalEnergy: st.TotalJ,
			Occupancy:   st.Occupancy,
			Capacity:    h.Size(),
			Chargers:    make(map[string]ChargerView, len(st.Chargers)),
		}
		mark := hubMark{version: st.Version, chargers: make(map[string]uint64, len(st.Chargers))}
		for _, c := range st.Chargers {
			view.Chargers[c.ID] = chargerView(c)
			mark.chargers[c.ID] = c.Version
		}
		snap.Hubs = append(snap.Hubs, view)
		snap.hubs[st.ID] = mark
	}
	if b.fleet != nil {
		for _, v := range b.fleet.Views(delta) {
			snap.Vehicles = append(snap.Vehicles, VehicleView{
				ID:               v.ID,
				SoC:              v.SoC,
				DistanceTraveled: v.DistanceM,
				Energy:           v.EnergyJ,
				State:            v.State.String(),
			})
			snap.vehicles[v.ID] = v.Version
		}
	}
	return snap
}

func chargerView(c charging.ChargerState) ChargerView {
	v := ChargerView{
		Occupied:         c.Occupied(),
		Active:           c.Active,
		CumulativeEnergy: c.CumulativeJ,
		CurrentInterval:  c.IntervalJ,
		PowerW:           c.PowerW,
		Plugs:            c.Plugs,
	}
	if c.Occupied() {
		id := c.OccupyingVehicle
		v.OccupyingVehicle = &id
	}
	return v
}

// Ack marks everything captured by s as delivered.
func (b *Builder) Ack(s Snapshot) {
	for id, m := range s.hubs {
		h, err := b.registry.Hub(id)
		if err != nil {
			continue
		}
		h.Ack(m.version, m.chargers)
	}
	if b.fleet != nil && len(s.vehicles) > 0 {
		b.fleet.Ack(s.vehicles)
	}
}

// ResetDirty clears every change flag regardless of what was published.
func (b *Builder) ResetDirty() {
	b.registry.ResetDirtyFlags()
	if b.fleet != nil {
		b.fleet.ResetDirty()
	}
}

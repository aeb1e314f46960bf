package charging

import "fmt"

// ChargerSpec describes one charger at load time.
type ChargerSpec struct {
	ID    string
	HubID string
	// LinkID is the link of the record the charger was declared in. When
	// set it must match the link of HubID.
	LinkID string
	Plugs  []string
	PowerW float64
}

// Charger is a single charging point. Its methods are not synchronized:
// they are only called by the owning Hub with the hub lock held.
type Charger struct {
	id     string
	hubID  string
	plugs  PlugSet
	powerW float64
	seq    int

	active      bool
	occupant    string
	cumulativeJ float64
	intervalJ   float64

	version   uint64
	published uint64
}

func newCharger(spec ChargerSpec, seq int) *Charger {
	return &Charger{
		id:     spec.ID,
		hubID:  spec.HubID,
		plugs:  NewPlugSet(spec.Plugs...),
		powerW: spec.PowerW,
		seq:    seq,
		active: true,
	}
}

func (c *Charger) touch() { c.version++ }

// occupy assigns the charger to vehicleID. Re-occupying with the same
// vehicle is a no-op.
func (c *Charger) occupy(vehicleID string) (bool, error) {
	if !c.active {
		return false, fmt.Errorf("charger %s: %w", c.id, ErrInactive)
	}
	if c.occupant == vehicleID {
		return false, nil
	}
	if c.occupant != "" {
		return false, fmt.Errorf("charger %s held by %s, requested by %s: %w",
			c.id, c.occupant, vehicleID, ErrResourceConflict)
	}
	c.occupant = vehicleID
	c.touch()
	return true, nil
}

// release frees the charger and returns the previous occupant.
func (c *Charger) release() string {
	prev := c.occupant
	if prev == "" {
		return ""
	}
	c.occupant = ""
	c.touch()
	return prev
}

func (c *Charger) setIntervalEnergy(v float64) {
	if !c.active {
		v = 0
	}
	if v == c.intervalJ {
		return
	}
	c.intervalJ = v
	c.touch()
}

// addCumulativeEnergy adds delta to the running total and to the current
// interval. Negative deltas are dropped so the total never decreases. It
// returns the amount actually applied.
func (c *Charger) addCumulativeEnergy(delta float64) float64 {
	if delta <= 0 {
		return 0
	}
	c.cumulativeJ += delta
	if c.active {
		c.intervalJ += delta
	}
	c.touch()
	return delta
}

func (c *Charger) setActive(active bool) error {
	if !active && c.occupant != "" {
		return fmt.Errorf("deactivate charger %s occupied by %s: %w", c.id, c.occupant, ErrInvalidTransition)
	}
	if c.active == active {
		return nil
	}
	c.active = active
	c.intervalJ = 0
	c.touch()
	return nil
}

func (c *Charger) dirty() bool { return c.version > c.published }

func (c *Charger) state(linkID string) ChargerState {
	return ChargerState{
		ID:               c.id,
		HubID:            c.hubID,
		LinkID:           linkID,
		Plugs:            c.plugs.Sorted(),
		PowerW:           c.powerW,
		Seq:              c.seq,
		Active:           c.active,
		OccupyingVehicle: c.occupant,
		CumulativeJ:      c.cumulativeJ,
		IntervalJ:        c.intervalJ,
		Version:          c.version,
		Dirty:            c.dirty(),
	}
}

// ChargerState is a copy of a charger taken under its hub lock.
type ChargerState struct {
	ID               string   `json:"id"`
	HubID            string   `json:"hub_id"`
	LinkID           string   `json:"link_id"`
	Plugs            []string `json:"plugs"`
	PowerW           float64  `json:"power_w"`
	Seq              int      `json:"seq"`
	Active           bool     `json:"active"`
	OccupyingVehicle string   `json:"occupying_vehicle,omitempty"`
	CumulativeJ      float64  `json:"cumulative_j"`
	IntervalJ        float64  `json:"interval_j"`
	Version          uint64   `json:"version"`
	Dirty            bool     `json:"dirty"`
}

// Occupied reports whether a vehicle holds the charger.
func (s ChargerState) Occupied() bool { return s.OccupyingVehicle != "" }

// Available reports whether the charger can accept a new vehicle.
func (s ChargerState) Available() bool { return s.Active && !s.Occupied() }

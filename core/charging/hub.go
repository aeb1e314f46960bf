package charging

import (
	"fmt"
	"math"
	"sync"
)

// HubSpec describes a hub at load time.
type HubSpec struct {
	ID     string
	LinkID string
}

// Hub aggregates the chargers bound to one road link. All methods are safe
// for concurrent use.
type Hub struct {
	id     string
	linkID string

	mu        sync.Mutex
	chargers  map[string]*Charger
	order     []*Charger
	occupancy int
	totalJ    float64
	version   uint64
	published uint64
}

func newHub(spec HubSpec) *Hub {
	return &Hub{id: spec.ID, linkID: spec.LinkID, chargers: make(map[string]*Charger)}
}

// ID returns the hub identifier.
func (h *Hub) ID() string { return h.id }

// LinkID returns the network link the hub is bound to.
func (h *Hub) LinkID() string { return h.linkID }

// addCharger is only used while the registry is being built.
func (h *Hub) addCharger(c *Charger) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.chargers[c.id]; ok {
		return fmt.Errorf("hub %s: duplicate charger %s: %w", h.id, c.id, ErrConfiguration)
	}
	h.chargers[c.id] = c
	h.order = append(h.order, c)
	return nil
}

func (h *Hub) charger(id string) (*Charger, error) {
	c, ok := h.chargers[id]
	if !ok {
		return nil, fmt.Errorf("charger %s in hub %s: %w", id, h.id, ErrNotFound)
	}
	return c, nil
}

// recount re-derives occupancy from the chargers and bumps the hub version
// when changed is true. Callers hold h.mu.
func (h *Hub) recount(changed bool) {
	n := 0
	for _, c := range h.order {
		if c.occupant != "" {
			n++
		}
	}
	if n != h.occupancy {
		h.occupancy = n
		changed = true
	}
	if changed {
		h.version++
	}
}

// IncrementOccupancy marks the charger occupied by vehicleID and books
// energyJ on both the charger and the hub.
func (h *Hub) IncrementOccupancy(chargerID, vehicleID string, energyJ float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.charger(chargerID)
	if err != nil {
		return err
	}
	changed, err := c.occupy(vehicleID)
	if err != nil {
		return err
	}
	if applied := c.addCumulativeEnergy(energyJ); applied > 0 {
		h.totalJ += applied
		changed = true
	}
	h.recount(changed)
	return nil
}

// DecrementOccupancy releases the charger, books energyJ and returns the
// vehicle that held it (empty when it was already free).
func (h *Hub) DecrementOccupancy(chargerID string, energyJ float64) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.charger(chargerID)
	if err != nil {
		return "", err
	}
	changed := false
	if applied := c.addCumulativeEnergy(energyJ); applied > 0 {
		h.totalJ += applied
		changed = true
	}
	prev := c.release()
	h.recount(changed || prev != "")
	return prev, nil
}

// AddEnergy books energy delivered during the current interval without
// touching occupancy.
func (h *Hub) AddEnergy(chargerID string, energyJ float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.charger(chargerID)
	if err != nil {
		return err
	}
	applied := c.addCumulativeEnergy(energyJ)
	h.totalJ += applied
	h.recount(applied > 0)
	return nil
}

// SetIntervalEnergy overrides the charger's current interval delivery.
func (h *Hub) SetIntervalEnergy(chargerID string, energyJ float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.charger(chargerID)
	if err != nil {
		return err
	}
	before := c.version
	c.setIntervalEnergy(energyJ)
	h.recount(c.version != before)
	return nil
}

// SetChargerActive activates or deactivates a charger. Deactivating an
// occupied charger fails with ErrInvalidTransition and changes nothing.
func (h *Hub) SetChargerActive(chargerID string, active bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.charger(chargerID)
	if err != nil {
		return err
	}
	before := c.version
	if err := c.setActive(active); err != nil {
		return err
	}
	h.recount(c.version != before)
	return nil
}

// StartInterval opens a new accounting interval. published maps charger
// ids to the interval energy already reported for them; only that amount
// is taken off, so energy booked after the capture carries over. Chargers
// missing from published keep their value.
func (h *Hub) StartInterval(published map[string]float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	changed := false
	for _, c := range h.order {
		v, ok := published[c.id]
		if !ok {
			continue
		}
		before := c.version
		c.setIntervalEnergy(math.Max(0, c.intervalJ-v))
		changed = changed || c.version != before
	}
	h.recount(changed)
}

// Occupancy returns the number of occupied chargers.
func (h *Hub) Occupancy() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.occupancy
}

// TotalEnergy returns the energy delivered by all chargers of the hub.
func (h *Hub) TotalEnergy() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalJ
}

// Dirty reports whether the hub changed since the last acknowledgment.
func (h *Hub) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version > h.published
}

// Size returns the number of chargers owned by the hub.
func (h *Hub) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Charger returns a copy of one charger.
func (h *Hub) Charger(id string) (ChargerState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.charger(id)
	if err != nil {
		return ChargerState{}, err
	}
	return c.state(h.linkID), nil
}

// Chargers returns copies of all chargers in registration order.
func (h *Hub) Chargers() []ChargerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ChargerState, 0, len(h.order))
	for _, c := range h.order {
		out = append(out, c.state(h.linkID))
	}
	return out
}

// available returns the free, active chargers compatible with plugs.
func (h *Hub) available(plugs PlugSet) []ChargerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ChargerState
	for _, c := range h.order {
		if !c.active || c.occupant != "" || !c.plugs.Intersects(plugs) {
			continue
		}
		out = append(out, c.state(h.linkID))
	}
	return out
}

// HubState is a consistent copy of a hub and its chargers.
type HubState struct {
	ID        string
	LinkID    string
	Occupancy int
	TotalJ    float64
	Version   uint64
	Dirty     bool
	Chargers  []ChargerState
}

// State copies the hub under its lock. With dirtyOnly set, only dirty
// chargers are included and ok is false when the hub itself is clean.
func (h *Hub) State(dirtyOnly bool) (st HubState, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dirty := h.version > h.published
	if dirtyOnly && !dirty {
		return HubState{}, false
	}
	st = HubState{
		ID:        h.id,
		LinkID:    h.linkID,
		Occupancy: h.occupancy,
		TotalJ:    h.totalJ,
		Version:   h.version,
		Dirty:     dirty,
	}
	for _, c := range h.order {
		if dirtyOnly && !c.dirty() {
			continue
		}
		st.Chargers = append(st.Chargers, c.state(h.linkID))
	}
	return st, true
}

// Ack marks the hub and the listed chargers as published up to the given
// versions. Versions never move backwards, so a late ack cannot hide a
// change made after the snapshot was taken.
func (h *Hub) Ack(hubVersion uint64, chargerVersions map[string]uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hubVersion > h.published {
		h.published = hubVersion
	}
	for id, v := range chargerVersions {
		c, ok := h.chargers[id]
		if ok && v > c.published {
			c.published = v
		}
	}
}

// ResetDirty marks the hub and all its chargers as published.
func (h *Hub) ResetDirty() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = h.version
	for _, c := range h.order {
		c.published = c.version
	}
}

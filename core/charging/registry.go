package charging

import (
	"fmt"
	"sort"

	"github.com/kilianp07/evhub/core/logger"
)

// Infrastructure is the hub and charger specification the registry is
// built from.
type Infrastructure struct {
	Hubs     []HubSpec
	Chargers []ChargerSpec
}

// Registry indexes hubs by id and by link, and chargers by id. The index
// is read-only after NewRegistry returns; all mutable state lives in the
// hubs.
type Registry struct {
	hubs         map[string]*Hub
	hubOrder     []*Hub
	byLink       map[string][]*Hub
	chargerToHub map[string]string
	issues       []error
	log          logger.Logger
}

// Option configures NewRegistry.
type Option func(*registryOptions)

type registryOptions struct {
	log    logger.Logger
	strict bool
}

// WithLogger sets the logger used to report skipped records.
func WithLogger(l logger.Logger) Option {
	return func(o *registryOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithStrict makes any invalid record fatal instead of skipping it.
func WithStrict(strict bool) Option {
	return func(o *registryOptions) { o.strict = strict }
}

// NewRegistry builds the registry. Invalid hub or charger records are
// skipped with a warning and kept in LoadIssues; in strict mode the first
// one is returned instead. A registry with no chargers is always an error.
func NewRegistry(infra Infrastructure, opts ...Option) (*Registry, error) {
	o := registryOptions{log: logger.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{
		hubs:         make(map[string]*Hub),
		byLink:       make(map[string][]*Hub),
		chargerToHub: make(map[string]string),
		log:          o.log,
	}

	reject := func(err error) error {
		if o.strict {
			return err
		}
		r.issues = append(r.issues, err)
		r.log.Warnf("registry: skipping record: %v", err)
		return nil
	}

	for _, hs := range infra.Hubs {
		if err := r.addHub(hs); err != nil {
			if err := reject(err); err != nil {
				return nil, err
			}
		}
	}

	seq := 0
	for _, cs := range infra.Chargers {
		if err := r.addCharger(cs, seq); err != nil {
			if err := reject(err); err != nil {
				return nil, err
			}
			continue
		}
		seq++
	}
	if seq == 0 {
		return nil, fmt.Errorf("no chargers registered: %w", ErrConfiguration)
	}

	sort.Slice(r.hubOrder, func(i, j int) bool { return r.hubOrder[i].id < r.hubOrder[j].id })
	r.log.Infof("registry: loaded %d hubs, %d chargers, %d skipped records", len(r.hubs), seq, len(r.issues))
	return r, nil
}

func (r *Registry) addHub(hs HubSpec) error {
	if hs.ID == "" {
		return fmt.Errorf("hub with empty id: %w", ErrConfiguration)
	}
	if hs.LinkID == "" {
		return fmt.Errorf("hub %s has no link: %w", hs.ID, ErrConfiguration)
	}
	if existing, ok := r.hubs[hs.ID]; ok {
		if existing.linkID == hs.LinkID {
			return nil
		}
		return fmt.Errorf("hub %s declared on links %s and %s: %w", hs.ID, existing.linkID, hs.LinkID, ErrConfiguration)
	}
	h := newHub(hs)
	r.hubs[hs.ID] = h
	r.hubOrder = append(r.hubOrder, h)
	r.byLink[hs.LinkID] = append(r.byLink[hs.LinkID], h)
	return nil
}

func (r *Registry) addCharger(cs ChargerSpec, seq int) error {
	if cs.ID == "" {
		return fmt.Errorf("charger with empty id in hub %s: %w", cs.HubID, ErrConfiguration)
	}
	if owner, ok := r.chargerToHub[cs.ID]; ok {
		return fmt.Errorf("duplicate charger %s (already in hub %s): %w", cs.ID, owner, ErrConfiguration)
	}
	h, ok := r.hubs[cs.HubID]
	if !ok {
		return fmt.Errorf("charger %s references unknown hub %q: %w", cs.ID, cs.HubID, ErrConfiguration)
	}
	if cs.LinkID != "" && cs.LinkID != h.linkID {
		return fmt.Errorf("charger %s declared on link %s but hub %s is on %s: %w", cs.ID, cs.LinkID, cs.HubID, h.linkID, ErrConfiguration)
	}
	if len(NewPlugSet(cs.Plugs...)) == 0 {
		return fmt.Errorf("charger %s has no plug type: %w", cs.ID, ErrConfiguration)
	}
	if cs.PowerW <= 0 {
		return fmt.Errorf("charger %s has non-positive power %.1f W: %w", cs.ID, cs.PowerW, ErrConfiguration)
	}
	if err := h.addCharger(newCharger(cs, seq)); err != nil {
		return err
	}
	r.chargerToHub[cs.ID] = cs.HubID
	return nil
}

// LoadIssues returns the records skipped while building the registry.
func (r *Registry) LoadIssues() []error {
	out := make([]error, len(r.issues))
	copy(out, r.issues)
	return out
}

// ChargerCount returns the number of registered chargers.
func (r *Registry) ChargerCount() int { return len(r.chargerToHub) }

// Hub returns the hub with the given id.
func (r *Registry) Hub(id string) (*Hub, error) {
	h, ok := r.hubs[id]
	if !ok {
		return nil, fmt.Errorf("hub %s: %w", id, ErrNotFound)
	}
	return h, nil
}

// Hubs returns every hub ordered by id.
func (r *Registry) Hubs() []*Hub {
	out := make([]*Hub, len(r.hubOrder))
	copy(out, r.hubOrder)
	return out
}

// HubIDForCharger resolves the hub owning a charger.
func (r *Registry) HubIDForCharger(chargerID string) (string, error) {
	id, ok := r.chargerToHub[chargerID]
	if !ok {
		return "", fmt.Errorf("charger %s: %w", chargerID, ErrNotFound)
	}
	return id, nil
}

func (r *Registry) owner(chargerID string) (*Hub, error) {
	id, err := r.HubIDForCharger(chargerID)
	if err != nil {
		return nil, err
	}
	return r.hubs[id], nil
}

// Charger returns a copy of one charger.
func (r *Registry) Charger(chargerID string) (ChargerState, error) {
	h, err := r.owner(chargerID)
	if err != nil {
		return ChargerState{}, err
	}
	return h.Charger(chargerID)
}

// Available lists the free, active chargers on linkID that accept at least
// one of plugs, ordered by registration sequence.
func (r *Registry) Available(linkID string, plugs PlugSet) []ChargerState {
	var out []ChargerState
	for _, h := range r.byLink[linkID] {
		out = append(out, h.available(plugs)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// FindAvailable picks one charger among Available using policy. A nil
// policy selects the first registered candidate.
func (r *Registry) FindAvailable(linkID string, plugs PlugSet, policy SelectionPolicy) (ChargerState, error) {
	candidates := r.Available(linkID, plugs)
	if len(candidates) == 0 {
		return ChargerState{}, fmt.Errorf("no free charger on link %s for plugs %v: %w", linkID, plugs.Sorted(), ErrNotFound)
	}
	if policy == nil {
		policy = FirstAvailable{}
	}
	return policy.Select(candidates), nil
}

// IncrementOccupancy forwards to the owning hub.
func (r *Registry) IncrementOccupancy(chargerID, vehicleID string, energyJ float64) error {
	h, err := r.owner(chargerID)
	if err != nil {
		return err
	}
	return h.IncrementOccupancy(chargerID, vehicleID, energyJ)
}

// DecrementOccupancy forwards to the owning hub.
func (r *Registry) DecrementOccupancy(chargerID string, energyJ float64) (string, error) {
	h, err := r.owner(chargerID)
	if err != nil {
		return "", err
	}
	return h.DecrementOccupancy(chargerID, energyJ)
}

// SetChargerActive forwards to the owning hub.
func (r *Registry) SetChargerActive(chargerID string, active bool) error {
	h, err := r.owner(chargerID)
	if err != nil {
		return err
	}
	return h.SetChargerActive(chargerID, active)
}

// AddEnergy forwards to the owning hub.
func (r *Registry) AddEnergy(chargerID string, energyJ float64) error {
	h, err := r.owner(chargerID)
	if err != nil {
		return err
	}
	return h.AddEnergy(chargerID, energyJ)
}

// SetIntervalEnergy forwards to the owning hub.
func (r *Registry) SetIntervalEnergy(chargerID string, energyJ float64) error {
	h, err := r.owner(chargerID)
	if err != nil {
		return err
	}
	return h.SetIntervalEnergy(chargerID, energyJ)
}

// StartInterval opens a new accounting interval on every hub, taking off
// the per-charger interval energy that was published.
func (r *Registry) StartInterval(published map[string]float64) {
	for _, h := range r.hubOrder {
		h.StartInterval(published)
	}
}

// DirtyHubs returns the hubs with unpublished changes.
func (r *Registry) DirtyHubs() []*Hub {
	var out []*Hub
	for _, h := range r.hubOrder {
		if h.Dirty() {
			out = append(out, h)
		}
	}
	return out
}

// ResetDirtyFlags marks every hub and charger as published.
func (r *Registry) ResetDirtyFlags() {
	for _, h := range r.hubOrder {
		h.ResetDirty()
	}
}

package assignment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/events"
	"github.com/kilianp07/evhub/core/fleet"
	"github.com/kilianp07/evhub/core/logger"
	"github.com/kilianp07/evhub/internal/eventbus"
)

// ErrUnsupportedEvent is returned by Handle for event types it does not
// know.
var ErrUnsupportedEvent = errors.New("unsupported event")

// DefaultChargingActivity is the activity type that triggers matching.
const DefaultChargingActivity = "car charging"

// Config tunes the coordinator.
type Config struct {
	// ChargingActivity is compared case-insensitively to activity types.
	ChargingActivity string
	TargetSoC        float64
}

func (c *Config) setDefaults() {
	if c.ChargingActivity == "" {
		c.ChargingActivity = DefaultChargingActivity
	}
	if c.TargetSoC <= 0 || c.TargetSoC > 1 {
		c.TargetSoC = 1
	}
}

// Coordinator runs the per-vehicle assignment state machine.
type Coordinator struct {
	registry *charging.Registry
	fleet    *fleet.Fleet
	service  ChargingService
	policy   charging.SelectionPolicy
	bus      *eventbus.TypedBus[events.Notification]
	logger   logger.Logger
	cfg      Config
	now      func() time.Time

	mu          sync.Mutex
	lastVehicle map[string]string
	sessions    map[string]Session
}

// NewCoordinator wires the coordinator. policy, bus and log are optional.
func NewCoordinator(reg *charging.Registry, fl *fleet.Fleet, svc ChargingService, policy charging.SelectionPolicy,
	bus *eventbus.TypedBus[events.Notification], log logger.Logger, cfg Config) (*Coordinator, error) {
	if reg == nil || fl == nil || svc == nil {
		return nil, fmt.Errorf("assignment: registry, fleet and charging service are required")
	}
	if policy == nil {
		policy = charging.FirstAvailable{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	cfg.setDefaults()
	return &Coordinator{
		registry:    reg,
		fleet:       fl,
		service:     svc,
		policy:      policy,
		bus:         bus,
		logger:      log,
		cfg:         cfg,
		now:         time.Now,
		lastVehicle: make(map[string]string),
		sessions:    make(map[string]Session),
	}, nil
}

// Handle applies one simulation event. Lookup misses are logged and
// absorbed; resource conflicts and invalid transitions are returned.
func (c *Coordinator) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.PersonLeavesVehicle:
		return c.personLeavesVehicle(e)
	case events.ActivityStart:
		return c.activityStart(ctx, e)
	case events.ActivityEnd:
		return c.activityEnd(ctx, e)
	case events.ChargingStart:
		return c.chargingStart(e)
	case events.ChargingEnd:
		return c.chargingEnd(ctx, e)
	case events.VehicleEntersTraffic:
		return c.fleetUpdate(c.fleet.SetState(e.VehicleID, fleet.Moving))
	case events.VehicleLeavesTraffic:
		return c.fleetUpdate(c.fleet.SetState(e.VehicleID, fleet.Stopped))
	case events.LinkLeave:
		return c.fleetUpdate(c.fleet.AddDistance(e.VehicleID, e.LengthM))
	case events.EnergyUpdate:
		return c.fleetUpdate(c.fleet.UpdateEnergy(e.VehicleID, e.SoC, e.EnergyJ))
	default:
		return fmt.Errorf("%T: %w", ev, ErrUnsupportedEvent)
	}
}

// Sessions returns the open sessions ordered by vehicle id.
func (c *Coordinator) Sessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Session returns the open session of a vehicle.
func (c *Coordinator) Session(vehicleID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[vehicleID]
	return s, ok
}

func (c *Coordinator) isCharging(activityType string) bool {
	return strings.EqualFold(strings.TrimSpace(activityType), c.cfg.ChargingActivity)
}

// fleetUpdate absorbs updates for vehicles the fleet does not track, such
// as non electric traffic.
func (c *Coordinator) fleetUpdate(err error) error {
	if errors.Is(err, fleet.ErrNotFound) {
		return nil
	}
	return err
}

func (c *Coordinator) personLeavesVehicle(e events.PersonLeavesVehicle) error {
	c.mu.Lock()
	c.lastVehicle[e.PersonID] = e.VehicleID
	c.mu.Unlock()
	return c.fleetUpdate(c.fleet.SetState(e.VehicleID, fleet.Parked))
}

func (c *Coordinator) vehicleOf(personID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lastVehicle[personID]
	return v, ok
}

func (c *Coordinator) activityStart(ctx context.Context, e events.ActivityStart) error {
	if !c.isCharging(e.ActivityType) {
		return nil
	}
	vehicleID, ok := c.vehicleOf(e.PersonID)
	if !ok {
		c.logger.Debugf("activity start: no vehicle known for person %s", e.PersonID)
		return nil
	}
	if s, busy := c.Session(vehicleID); busy {
		return fmt.Errorf("vehicle %s already charging at %s: %w", vehicleID, s.ChargerID, charging.ErrInvalidTransition)
	}
	ev, err := c.fleet.Get(vehicleID)
	if err != nil {
		c.logger.Warnf("activity start: %v", err)
		return nil
	}

	ch, err := c.registry.FindAvailable(e.LinkID, charging.NewPlugSet(ev.Plugs...), c.policy)
	if errors.Is(err, charging.ErrNotFound) {
		c.logger.Infow("no charger available", map[string]any{
			"vehicle_id": vehicleID,
			"link_id":    e.LinkID,
			"plugs":      ev.Plugs,
		})
		c.publish(events.MatchMissed{VehicleID: vehicleID, LinkID: e.LinkID, Plugs: ev.Plugs, SimTime: e.Time, At: c.now()})
		return nil
	}
	if err != nil {
		return err
	}

	strategy := Strategy{
		VehicleID:   vehicleID,
		ChargerID:   ch.ID,
		HubID:       ch.HubID,
		PowerW:      ch.PowerW,
		CapacityJ:   ev.CapacityJ,
		StartEnergy: ev.EnergyJ,
		TargetSoC:   c.cfg.TargetSoC,
		SimTime:     e.Time,
	}
	if err := c.service.Register(ctx, strategy); err != nil {
		return fmt.Errorf("register vehicle %s for charging: %w", vehicleID, err)
	}
	if err := c.registry.IncrementOccupancy(ch.ID, vehicleID, 0); err != nil {
		if _, derr := c.service.Deregister(ctx, vehicleID, e.Time); derr != nil {
			c.logger.Warnf("deregister %s after failed occupy: %v", vehicleID, derr)
		}
		return err
	}

	s := Session{
		ID:         uuid.NewString(),
		PersonID:   e.PersonID,
		VehicleID:  vehicleID,
		ChargerID:  ch.ID,
		HubID:      ch.HubID,
		TargetSoC:  c.cfg.TargetSoC,
		AssignedAt: e.Time,
		StartedAt:  c.now(),
	}
	c.mu.Lock()
	c.sessions[vehicleID] = s
	c.mu.Unlock()
	if err := c.fleetUpdate(c.fleet.SetState(vehicleID, fleet.Charging)); err != nil {
		return err
	}

	c.logger.Infow("session started", map[string]any{
		"session_id": s.ID,
		"vehicle_id": vehicleID,
		"charger_id": ch.ID,
		"hub_id":     ch.HubID,
	})
	c.publish(events.SessionStarted{
		SessionID: s.ID,
		VehicleID: vehicleID,
		ChargerID: ch.ID,
		HubID:     ch.HubID,
		TargetSoC: s.TargetSoC,
		SimTime:   e.Time,
		At:        s.StartedAt,
	})
	return nil
}

func (c *Coordinator) activityEnd(ctx context.Context, e events.ActivityEnd) error {
	if !c.isCharging(e.ActivityType) {
		return nil
	}
	vehicleID, ok := c.vehicleOf(e.PersonID)
	if !ok {
		c.logger.Debugf("activity end: no vehicle known for person %s", e.PersonID)
		return nil
	}
	s, ok := c.take(vehicleID, "")
	if !ok {
		c.logger.Debugf("activity end: vehicle %s has no open session", vehicleID)
		return nil
	}
	energy, err := c.service.Deregister(ctx, vehicleID, e.Time)
	if err != nil {
		c.logger.Warnf("deregister %s: %v", vehicleID, err)
		energy = 0
	}
	return c.release(s, energy, e.Kind(), e.Time)
}

func (c *Coordinator) chargingStart(e events.ChargingStart) error {
	s, ok := c.Session(e.VehicleID)
	if !ok {
		c.logger.Debugf("charging start: vehicle %s has no open session", e.VehicleID)
		return nil
	}
	if s.ChargerID != e.ChargerID {
		return fmt.Errorf("vehicle %s started charging at %s but holds %s: %w",
			e.VehicleID, e.ChargerID, s.ChargerID, charging.ErrResourceConflict)
	}
	return c.fleetUpdate(c.fleet.SetState(e.VehicleID, fleet.Charging))
}

func (c *Coordinator) chargingEnd(ctx context.Context, e events.ChargingEnd) error {
	s, ok := c.Session(e.VehicleID)
	if !ok {
		return nil
	}
	if s.ChargerID != e.ChargerID {
		return fmt.Errorf("vehicle %s ended charging at %s but holds %s: %w",
			e.VehicleID, e.ChargerID, s.ChargerID, charging.ErrResourceConflict)
	}
	if _, ok := c.take(e.VehicleID, e.ChargerID); !ok {
		return nil
	}
	if _, err := c.service.Deregister(ctx, e.VehicleID, e.Time); err != nil {
		c.logger.Debugf("deregister %s on charging end: %v", e.VehicleID, err)
	}
	return c.release(s, e.EnergyJ, e.Kind(), e.Time)
}

// take removes the session of vehicleID. When chargerID is set the session
// is only removed if it is held on that charger.
func (c *Coordinator) take(vehicleID, chargerID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[vehicleID]
	if !ok || (chargerID != "" && s.ChargerID != chargerID) {
		return Session{}, false
	}
	delete(c.sessions, vehicleID)
	return s, true
}

// Deliver books energy a vehicle received while its session is open on the
// charger, its hub and the vehicle, so the current interval shows live
// delivery. It does nothing when the vehicle holds no session on chargerID.
func (c *Coordinator) Deliver(vehicleID, chargerID string, energyJ float64) error {
	if energyJ <= 0 {
		return nil
	}
	c.mu.Lock()
	s, ok := c.sessions[vehicleID]
	if !ok || s.ChargerID != chargerID {
		c.mu.Unlock()
		return nil
	}
	s.DeliveredJ += energyJ
	c.sessions[vehicleID] = s
	c.mu.Unlock()

	if err := c.registry.AddEnergy(chargerID, energyJ); err != nil {
		return fmt.Errorf("deliver to %s on %s: %w", vehicleID, chargerID, err)
	}
	return c.fleetUpdate(c.fleet.AddEnergy(vehicleID, energyJ))
}

// release frees the charger. energyJ is the session total; only the part
// not already booked through Deliver is added.
func (c *Coordinator) release(s Session, energyJ float64, reason string, simTime float64) error {
	energyJ = math.Max(energyJ, s.DeliveredJ)
	rest := energyJ - s.DeliveredJ
	if _, err := c.registry.DecrementOccupancy(s.ChargerID, rest); err != nil {
		return fmt.Errorf("release %s from %s: %w", s.VehicleID, s.ChargerID, err)
	}
	if err := c.fleetUpdate(c.fleet.AddEnergy(s.VehicleID, rest)); err != nil {
		return err
	}
	if err := c.fleetUpdate(c.fleet.SetState(s.VehicleID, fleet.Parked)); err != nil {
		return err
	}
	c.logger.Infow("session ended", map[string]any{
		"session_id": s.ID,
		"vehicle_id": s.VehicleID,
		"charger_id": s.ChargerID,
		"energy_j":   energyJ,
		"reason":     reason,
	})
	c.publish(events.SessionEnded{
		SessionID: s.ID,
		VehicleID: s.VehicleID,
		ChargerID: s.ChargerID,
		HubID:     s.HubID,
		EnergyJ:   energyJ,
		Duration:  simTime - s.AssignedAt,
		Reason:    reason,
		SimTime:   simTime,
		At:        c.now(),
	})
	return nil
}

func (c *Coordinator) publish(n events.Notification) {
	if c.bus != nil {
		c.bus.Publish(n)
	}
}

// Package energy provides the reference charging collaborator: every
// registered vehicle draws the full rated power of its charger until it
// reaches its target state of charge.
package energy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/evhub/core/assignment"
	"github.com/kilianp07/evhub/core/events"
)

// ErrAlreadyRegistered is returned when a vehicle is registered twice.
var ErrAlreadyRegistered = errors.New("vehicle already registered")

type registration struct {
	strategy assignment.Strategy
	reported bool
	accrued  float64
}

// Accrual is the energy one vehicle received since the previous Accrue.
type Accrual struct {
	VehicleID string
	ChargerID string
	EnergyJ   float64
}

// ConstantPower implements assignment.ChargingService.
type ConstantPower struct {
	efficiency float64

	mu   sync.Mutex
	regs map[string]*registration
}

// NewConstantPower returns a service delivering efficiency times the
// charger power. Values outside (0,1] select 1.
func NewConstantPower(efficiency float64) *ConstantPower {
	if efficiency <= 0 || efficiency > 1 {
		efficiency = 1
	}
	return &ConstantPower{efficiency: efficiency, regs: make(map[string]*registration)}
}

func (c *ConstantPower) Register(_ context.Context, s assignment.Strategy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.regs[s.VehicleID]; ok {
		return fmt.Errorf("%s: %w", s.VehicleID, ErrAlreadyRegistered)
	}
	c.regs[s.VehicleID] = &registration{strategy: s}
	return nil
}

func (c *ConstantPower) Deregister(_ context.Context, vehicleID string, simTime float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.regs[vehicleID]
	if !ok {
		return 0, nil
	}
	delete(c.regs, vehicleID)
	return c.delivered(r.strategy, simTime), nil
}

func (c *ConstantPower) battery(s assignment.Strategy) *Battery {
	return &Battery{CapacityJ: s.CapacityJ, EnergyJ: s.StartEnergy}
}

func (c *ConstantPower) delivered(s assignment.Strategy, simTime float64) float64 {
	return c.battery(s).Charge(s.PowerW*c.efficiency, simTime-s.SimTime, s.TargetSoC)
}

// Due returns a ChargingEnd for every vehicle that reached its target by
// simTime. Each vehicle is reported once.
func (c *ConstantPower) Due(simTime float64) []events.ChargingEnd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.ChargingEnd
	for id, r := range c.regs {
		if r.reported {
			continue
		}
		s := r.strategy
		done := s.SimTime + c.battery(s).TimeTo(s.TargetSoC, s.PowerW*c.efficiency)
		if done > simTime {
			continue
		}
		r.reported = true
		out = append(out, events.ChargingEnd{
			ChargerID: s.ChargerID,
			VehicleID: id,
			EnergyJ:   c.delivered(s, done),
			Time:      done,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}

// Accrue returns the energy each registered vehicle received between the
// previous call and simTime, ordered by vehicle id. Vehicles with nothing
// new are left out.
func (c *ConstantPower) Accrue(simTime float64) []Accrual {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Accrual
	for id, r := range c.regs {
		total := c.delivered(r.strategy, simTime)
		delta := total - r.accrued
		if delta <= 0 {
			continue
		}
		r.accrued = total
		out = append(out, Accrual{VehicleID: id, ChargerID: r.strategy.ChargerID, EnergyJ: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Active returns the number of registered vehicles.
func (c *ConstantPower) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regs)
}

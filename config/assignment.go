package config

import (
	"fmt"

	"github.com/kilianp07/evhub/core/assignment"
	"github.com/kilianp07/evhub/core/charging"
)

const (
	OnConflictAbort = "abort"
	OnConflictSkip  = "skip"
)

// AssignmentConfig tunes the coordinator.
type AssignmentConfig struct {
	// Policy names a charging.SelectionPolicies entry.
	Policy           string  `json:"policy"`
	ChargingActivity string  `json:"charging_activity"`
	TargetSoC        float64 `json:"target_soc"`
	// OnConflict decides what a hard coordinator error does to the event
	// loop: "abort" stops the run, "skip" reports it and continues.
	OnConflict string `json:"on_conflict"`
	// Efficiency of the constant power charging model, in (0, 1].
	Efficiency float64 `json:"efficiency"`
}

func (c *AssignmentConfig) SetDefaults() {
	if c.Policy == "" {
		c.Policy = charging.PolicyFirst
	}
	if c.ChargingActivity == "" {
		c.ChargingActivity = assignment.DefaultChargingActivity
	}
	if c.TargetSoC == 0 {
		c.TargetSoC = 0.8
	}
	if c.OnConflict == "" {
		c.OnConflict = OnConflictAbort
	}
	if c.Efficiency == 0 {
		c.Efficiency = 1
	}
}

func (c AssignmentConfig) Validate() error {
	if _, err := charging.NewSelectionPolicy(c.Policy); err != nil {
		return fmt.Errorf("assignment.policy: %w", err)
	}
	if c.TargetSoC <= 0 || c.TargetSoC > 1 {
		return fmt.Errorf("assignment.target_soc must be in (0, 1], got %v", c.TargetSoC)
	}
	if c.OnConflict != OnConflictAbort && c.OnConflict != OnConflictSkip {
		return fmt.Errorf("assignment.on_conflict must be %q or %q", OnConflictAbort, OnConflictSkip)
	}
	if c.Efficiency <= 0 || c.Efficiency > 1 {
		return fmt.Errorf("assignment.efficiency must be in (0, 1], got %v", c.Efficiency)
	}
	return nil
}

// EventsConfig selects where simulation events come from.
type EventsConfig struct {
	// Source is "mqtt", "nats" or "none". With "none" the service only
	// serves the API and publishes snapshots; events are fed by replay.
	Source string `json:"source"`
	// Buffer is the capacity of the queue between the transport callback
	// and the event loop.
	Buffer int `json:"buffer"`
}

func (c *EventsConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = "none"
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
}

func (c EventsConfig) Validate() error {
	switch c.Source {
	case "mqtt", "nats", "none":
		return nil
	}
	return fmt.Errorf("unknown events.source %q", c.Source)
}

package assignment

import "context"

// Strategy asks the charging collaborator to charge one vehicle up to a
// target state of charge.
type Strategy struct {
	VehicleID   string
	ChargerID   string
	HubID       string
	PowerW      float64
	CapacityJ   float64
	StartEnergy float64
	TargetSoC   float64
	SimTime     float64
}

// ChargingService is the collaborator that delivers energy to registered
// vehicles.
type ChargingService interface {
	Register(ctx context.Context, s Strategy) error
	// Deregister stops charging the vehicle and returns the energy it
	// received since Register. Unknown vehicles yield zero.
	Deregister(ctx context.Context, vehicleID string, simTime float64) (float64, error)
}

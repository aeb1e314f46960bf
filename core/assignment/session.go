package assignment

import "time"

// Session pairs a vehicle with the charger it occupies.
type Session struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id,omitempty"`
	VehicleID  string    `json:"vehicle_id"`
	ChargerID  string    `json:"charger_id"`
	HubID      string    `json:"hub_id"`
	TargetSoC  float64   `json:"target_soc"`
	AssignedAt float64   `json:"assigned_at"`
	StartedAt  time.Time `json:"started_at"`
	// DeliveredJ is the energy already booked while the session is open.
	DeliveredJ float64 `json:"delivered_j"`
}

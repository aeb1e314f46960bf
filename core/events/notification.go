package events

import "time"

// Notification is published by the coordinator on the run bus.
type Notification interface {
	isNotification()
}

// SessionStarted is published after a vehicle was matched to a charger.
type SessionStarted struct {
	SessionID string
	VehicleID string
	ChargerID string
	HubID     string
	TargetSoC float64
	SimTime   float64
	At        time.Time
}

// SessionEnded is published when a session is released. Reason is the
// kind of the event that closed it.
type SessionEnded struct {
	SessionID string
	VehicleID string
	ChargerID string
	HubID     string
	EnergyJ   float64
	Duration  float64
	Reason    string
	SimTime   float64
	At        time.Time
}

// MatchMissed is published when no compatible charger was free.
type MatchMissed struct {
	VehicleID string
	LinkID    string
	Plugs     []string
	SimTime   float64
	At        time.Time
}

func (SessionStarted) isNotification() {}
func (SessionEnded) isNotification()   {}
func (MatchMissed) isNotification()    {}

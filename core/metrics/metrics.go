package metrics

import "time"

// SessionPhase tells whether a session started or ended.
type SessionPhase string

const (
	SessionStarted SessionPhase = "started"
	SessionEnded   SessionPhase = "ended"
)

// SessionEvent describes a charging session transition.
type SessionEvent struct {
	SessionID string
	VehicleID string
	ChargerID string
	HubID     string
	Phase     SessionPhase
	EnergyJ   float64
	DurationS float64
	Reason    string
	Time      time.Time
}

// MetricsSink records charging sessions for observability purposes.
type MetricsSink interface {
	RecordSession(ev SessionEvent) error
}

// HubStateEvent is a periodic sample of one hub.
type HubStateEvent struct {
	HubID        string
	LinkID       string
	Occupancy    int
	Capacity     int
	TotalEnergyJ float64
	Time         time.Time
}

// HubStateRecorder records hub samples.
type HubStateRecorder interface {
	RecordHubState(ev HubStateEvent) error
}

// MatchMissEvent records a vehicle that found no free charger.
type MatchMissEvent struct {
	VehicleID string
	LinkID    string
	Time      time.Time
}

// MatchMissRecorder records unmatched arrivals.
type MatchMissRecorder interface {
	RecordMatchMiss(ev MatchMissEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSession(SessionEvent) error     { return nil }
func (NopSink) RecordHubState(HubStateEvent) error   { return nil }
func (NopSink) RecordMatchMiss(MatchMissEvent) error { return nil }

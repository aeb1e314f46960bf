// Package sessionlog keeps an append-only audit trail of completed
// charging sessions. Records are written for operators and offline
// analysis; the engine never reads them back.
package sessionlog

import (
	"context"
	"fmt"
	"time"
)

// Record captures one completed charging session.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	VehicleID  string    `json:"vehicle_id"`
	ChargerID  string    `json:"charger_id"`
	HubID      string    `json:"hub_id"`
	EnergyJ    float64   `json:"energy_j"`
	StartedSim float64   `json:"started_sim"`
	EndedSim   float64   `json:"ended_sim"`
	Reason     string    `json:"reason"`
}

// Query defines filters for retrieving records. Zero values match all.
type Query struct {
	Start     time.Time
	End       time.Time
	VehicleID string
	HubID     string
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.VehicleID != "" && r.VehicleID != q.VehicleID {
		return false
	}
	if q.HubID != "" && r.HubID != q.HubID {
		return false
	}
	return true
}

// LogStore persists Records and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Config selects and tunes the store.
type Config struct {
	// Backend is one of "", "jsonl", "rotating" or "sqlite". Empty
	// disables the session log.
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
		return nil
	case "jsonl", "rotating", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("session_log.path required for backend %q", c.Backend)
		}
		return nil
	}
	return fmt.Errorf("unknown session_log.backend %q", c.Backend)
}

// Open builds the configured store. It returns nil, nil when the log is
// disabled.
func Open(c Config) (LogStore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		store LogStore
		err   error
	)
	switch c.Backend {
	case "jsonl":
		store, err = NewJSONLStore(c.Path)
	case "rotating":
		store, err = NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	case "sqlite":
		store, err = NewSQLiteStore(c.Path)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return store, nil
}

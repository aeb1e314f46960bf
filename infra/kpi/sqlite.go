package kpi

import (
	"database/sql"
	"time"

	core "github.com/kilianp07/evhub/core/metrics/kpi"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists daily hub KPIs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS hub_kpi (
        hub_id TEXT,
        day INTEGER,
        delivered_kwh REAL,
        sessions INTEGER,
        PRIMARY KEY(hub_id, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add merges the record into the stored daily aggregate.
func (s *SQLiteStore) Add(r core.Record) error {
	d := core.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO hub_kpi (hub_id, day, delivered_kwh, sessions)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(hub_id, day) DO UPDATE SET
            delivered_kwh = delivered_kwh + excluded.delivered_kwh,
            sessions = sessions + excluded.sessions`,
		r.HubID, d.Unix(), r.DeliveredKWh, r.Sessions)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(hubID string, start, end time.Time) ([]core.Record, error) {
	start = core.Day(start)
	end = core.Day(end)
	rows, err := s.db.Query(`SELECT hub_id, day, delivered_kwh, sessions
        FROM hub_kpi WHERE hub_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		hubID, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []core.Record
	for rows.Next() {
		var (
			id       string
			ts       int64
			kwh      float64
			sessions int
		)
		if err := rows.Scan(&id, &ts, &kwh, &sessions); err != nil {
			return nil, err
		}
		res = append(res, core.Record{
			HubID:        id,
			Date:         time.Unix(ts, 0).UTC(),
			DeliveredKWh: kwh,
			Sessions:     sessions,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

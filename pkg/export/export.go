// Package export writes completed charging sessions for offline analysis.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/kilianp07/evhub/core/sessionlog"
)

var csvHeader = []string{
	"timestamp", "session_id", "vehicle_id", "charger_id", "hub_id",
	"energy_kwh", "started_sim", "ended_sim", "reason",
}

// WriteJSON writes the records to w as one JSON array.
func WriteJSON(w io.Writer, records []sessionlog.Record) error {
	if records == nil {
		records = []sessionlog.Record{}
	}
	return json.NewEncoder(w).Encode(records)
}

// WriteCSV writes the records to w with a header row. Energy is converted
// to kWh.
func WriteCSV(w io.Writer, records []sessionlog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			r.Timestamp.Format(time.RFC3339),
			r.SessionID,
			r.VehicleID,
			r.ChargerID,
			r.HubID,
			strconv.FormatFloat(kpi.JoulesToKWh(r.EnergyJ), 'f', 3, 64),
			strconv.FormatFloat(r.StartedSim, 'f', -1, 64),
			strconv.FormatFloat(r.EndedSim, 'f', -1, 64),
			r.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

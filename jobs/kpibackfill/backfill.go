// Package kpibackfill rebuilds daily hub KPIs from the session log.
package kpibackfill

import (
	"context"

	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/kilianp07/evhub/core/sessionlog"
)

// Backfill processes historical session records and populates the store.
// It returns the number of records added.
func Backfill(store kpi.Store, history []sessionlog.Record) (int, error) {
	n := 0
	for _, r := range history {
		if r.HubID == "" {
			continue
		}
		rec := kpi.Record{
			HubID:        r.HubID,
			Date:         kpi.Day(r.Timestamp),
			DeliveredKWh: kpi.JoulesToKWh(r.EnergyJ),
			Sessions:     1,
		}
		if err := store.Add(rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// FromLog reads every record of log and backfills store.
func FromLog(ctx context.Context, store kpi.Store, log sessionlog.LogStore) (int, error) {
	recs, err := log.Query(ctx, sessionlog.Query{})
	if err != nil {
		return 0, err
	}
	return Backfill(store, recs)
}

package kpi

import "time"

// Record aggregates the charging activity of a hub over one day.
type Record struct {
	HubID        string
	Date         time.Time
	DeliveredKWh float64
	Sessions     int
}

// MeanSessionKWh returns the average energy per completed session.
func (r Record) MeanSessionKWh() float64 {
	if r.Sessions == 0 {
		return 0
	}
	return r.DeliveredKWh / float64(r.Sessions)
}

// JoulesToKWh converts joules to kilowatt hours.
func JoulesToKWh(j float64) float64 { return j / 3.6e6 }

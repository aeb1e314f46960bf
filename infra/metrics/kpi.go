package metrics

import (
	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/prometheus/client_golang/prometheus"
)

// KPISink aggregates completed sessions into daily hub KPIs and exposes
// the current day as gauges.
type KPISink struct {
	store     kpi.Store
	delivered *prometheus.GaugeVec
	sessions  *prometheus.GaugeVec
	mean      *prometheus.GaugeVec
}

// NewKPISink creates a sink with Prometheus gauges registered on reg.
func NewKPISink(store kpi.Store, reg prometheus.Registerer) (*KPISink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	delivered, err := Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_daily_delivered_kwh",
		Help: "Energy delivered per hub and day",
	}, []string{"hub_id", "day"}))
	if err != nil {
		return nil, err
	}
	sessions, err := Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_daily_sessions",
		Help: "Completed sessions per hub and day",
	}, []string{"hub_id", "day"}))
	if err != nil {
		return nil, err
	}
	mean, err := Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_daily_mean_session_kwh",
		Help: "Mean energy per completed session per hub and day",
	}, []string{"hub_id", "day"}))
	if err != nil {
		return nil, err
	}
	return &KPISink{store: store, delivered: delivered, sessions: sessions, mean: mean}, nil
}

// RecordSession folds ended sessions into the store and refreshes the
// gauges of that day.
func (s *KPISink) RecordSession(ev coremetrics.SessionEvent) error {
	if ev.Phase != coremetrics.SessionEnded {
		return nil
	}
	rec := kpi.Record{HubID: ev.HubID, Date: ev.Time, DeliveredKWh: kpi.JoulesToKWh(ev.EnergyJ), Sessions: 1}
	if err := s.store.Add(rec); err != nil {
		return err
	}
	records, err := s.store.Query(ev.HubID, ev.Time, ev.Time)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		r := records[0]
		day := kpi.Day(ev.Time).Format("2006-01-02")
		s.delivered.WithLabelValues(ev.HubID, day).Set(r.DeliveredKWh)
		s.sessions.WithLabelValues(ev.HubID, day).Set(float64(r.Sessions))
		s.mean.WithLabelValues(ev.HubID, day).Set(r.MeanSessionKWh())
	}
	return nil
}

package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records charging sessions in Prometheus metrics.
type PromSink struct {
	sessions  *prometheus.CounterVec
	energy    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	occupancy *prometheus.GaugeVec
	misses    *prometheus.CounterVec
}

// NewPromSink registers charging metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	s, err := NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sessions, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_sessions_total",
		Help: "Charging session transitions",
	}, []string{"hub_id", "phase"}))
	if err != nil {
		return nil, err
	}
	energy, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_energy_kwh_total",
		Help: "Energy delivered by completed sessions",
	}, []string{"hub_id"}))
	if err != nil {
		return nil, err
	}
	duration, err := Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "charging_session_duration_seconds",
		Help:    "Simulated duration of completed sessions",
		Buckets: prometheus.ExponentialBuckets(60, 2, 10),
	}, []string{"hub_id"}))
	if err != nil {
		return nil, err
	}
	occupancy, err := Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_occupied_chargers",
		Help: "Occupied chargers per hub",
	}, []string{"hub_id"}))
	if err != nil {
		return nil, err
	}
	misses, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_match_misses_total",
		Help: "Arrivals that found no free compatible charger",
	}, []string{"link_id"}))
	if err != nil {
		return nil, err
	}
	return &PromSink{sessions: sessions, energy: energy, duration: duration, occupancy: occupancy, misses: misses}, nil
}

// Register adds c to reg, reusing an identical collector that is already
// registered.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// RecordSession counts the transition and, for ended sessions, the
// delivered energy and duration.
func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	s.sessions.WithLabelValues(ev.HubID, string(ev.Phase)).Inc()
	if ev.Phase == coremetrics.SessionEnded {
		s.energy.WithLabelValues(ev.HubID).Add(kpi.JoulesToKWh(max(ev.EnergyJ, 0)))
		s.duration.WithLabelValues(ev.HubID).Observe(max(ev.DurationS, 0))
	}
	return nil
}

// RecordHubState sets the occupancy gauge.
func (s *PromSink) RecordHubState(ev coremetrics.HubStateEvent) error {
	s.occupancy.WithLabelValues(ev.HubID).Set(float64(ev.Occupancy))
	return nil
}

// RecordMatchMiss counts arrivals without a charger.
func (s *PromSink) RecordMatchMiss(ev coremetrics.MatchMissEvent) error {
	s.misses.WithLabelValues(ev.LinkID).Inc()
	return nil
}

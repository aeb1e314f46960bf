package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/kilianp07/evhub/infra/logger"
)

// InfluxSink writes charging events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSession writes a session transition.
func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	p := write.NewPointWithMeasurement("charging_session").
		AddTag("hub_id", ev.HubID).
		AddTag("charger_id", ev.ChargerID).
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("phase", string(ev.Phase))
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("session_id", ev.SessionID).
		AddField("energy_kwh", round3(kpi.JoulesToKWh(ev.EnergyJ))).
		AddField("duration_s", round3(ev.DurationS)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordHubState writes a hub sample.
func (s *InfluxSink) RecordHubState(ev coremetrics.HubStateEvent) error {
	util := 0.0
	if ev.Capacity > 0 {
		util = float64(ev.Occupancy) / float64(ev.Capacity)
	}
	p := write.NewPointWithMeasurement("hub_state").
		AddTag("hub_id", ev.HubID).
		AddTag("link_id", ev.LinkID).
		AddField("occupancy", ev.Occupancy).
		AddField("capacity", ev.Capacity).
		AddField("utilization", round3(util)).
		AddField("total_energy_kwh", round3(kpi.JoulesToKWh(ev.TotalEnergyJ))).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordMatchMiss writes an unmatched arrival.
func (s *InfluxSink) RecordMatchMiss(ev coremetrics.MatchMissEvent) error {
	p := write.NewPointWithMeasurement("match_missed").
		AddTag("link_id", ev.LinkID).
		AddTag("vehicle_id", ev.VehicleID).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

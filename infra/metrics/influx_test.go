package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/evhub/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(b)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func TestInfluxSink_RecordSession(t *testing.T) {
	rec := &lineRecorder{}
	sink := NewInfluxSink(rec.server(t).URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	err := sink.RecordSession(coremetrics.SessionEvent{
		SessionID: "s1",
		VehicleID: "v1",
		ChargerID: "H1_col1",
		HubID:     "H1",
		Phase:     coremetrics.SessionEnded,
		EnergyJ:   7_200_000,
		DurationS: 1800,
		Reason:    "activity_end",
		Time:      now,
	})
	require.NoError(t, err)

	p := write.NewPointWithMeasurement("charging_session").
		AddTag("hub_id", "H1").
		AddTag("charger_id", "H1_col1").
		AddTag("vehicle_id", "v1").
		AddTag("phase", "ended").
		AddTag("reason", "activity_end").
		AddField("session_id", "s1").
		AddField("energy_kwh", 2.0).
		AddField("duration_s", 1800.0).
		SetTime(now)
	assert.Equal(t, []string{strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))}, rec.lines())
}

func TestInfluxSink_RecordHubState(t *testing.T) {
	rec := &lineRecorder{}
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	require.NoError(t, sink.RecordHubState(coremetrics.HubStateEvent{
		HubID: "H1", LinkID: "L100", Occupancy: 1, Capacity: 3, TotalEnergyJ: 3_600_000, Time: now,
	}))
	p := write.NewPointWithMeasurement("hub_state").
		AddTag("hub_id", "H1").
		AddTag("link_id", "L100").
		AddField("occupancy", 1).
		AddField("capacity", 3).
		AddField("utilization", 0.333).
		AddField("total_energy_kwh", 1.0).
		SetTime(now)
	assert.Equal(t, []string{strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))}, rec.lines())
}

func TestInfluxSink_RecordMatchMiss(t *testing.T) {
	rec := &lineRecorder{}
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()

	require.NoError(t, sink.RecordMatchMiss(coremetrics.MatchMissEvent{VehicleID: "v9", LinkID: "L7", Time: now}))
	p := write.NewPointWithMeasurement("match_missed").
		AddTag("link_id", "L7").
		AddTag("vehicle_id", "v9").
		AddField("count", 1).
		SetTime(now)
	assert.Equal(t, []string{strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))}, rec.lines())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}

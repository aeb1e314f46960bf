package admin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evhub/core/assignment"
	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/fleet"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/core/snapshot"
	"github.com/kilianp07/evhub/core/stats"
)

type staticSessions []assignment.Session

func (s staticSessions) Sessions() []assignment.Session { return s }

type memLog []sessionlog.Record

func (m memLog) Append(context.Context, sessionlog.Record) error { return nil }
func (m memLog) Query(_ context.Context, q sessionlog.Query) ([]sessionlog.Record, error) {
	var out []sessionlog.Record
	for _, r := range m {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m memLog) Close() error { return nil }

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	infra := charging.Infrastructure{Hubs: []charging.HubSpec{{ID: "H1", LinkID: "L100"}}}
	for i := 1; i <= 2; i++ {
		infra.Chargers = append(infra.Chargers, charging.ChargerSpec{
			ID: fmt.Sprintf("H1_col%d", i), HubID: "H1", Plugs: []string{"AC"}, PowerW: 11000,
		})
	}
	reg, err := charging.NewRegistry(infra)
	require.NoError(t, err)
	return Deps{Registry: reg, Builder: snapshot.NewBuilder(reg, fleet.New())}
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	h.ServeHTTP(rr, req)
	return rr
}

func TestSetActive(t *testing.T) {
	d := newTestDeps(t)
	h := NewHandler(d)

	rr := do(h, http.MethodPost, "/api/chargers/H1_col1/active", `{"active":false}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	c, err := d.Registry.Charger("H1_col1")
	require.NoError(t, err)
	assert.False(t, c.Active)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/chargers/nope/active", `{"active":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/chargers/H1_col1/active", `{}`).Code)

	require.NoError(t, d.Registry.IncrementOccupancy("H1_col2", "v1", 0))
	rr = do(h, http.MethodPost, "/api/chargers/H1_col2/active", `{"active":false}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	c, err = d.Registry.Charger("H1_col2")
	require.NoError(t, err)
	assert.True(t, c.Active, "state unchanged on failure")
	assert.Equal(t, "v1", c.OccupyingVehicle)
}

func TestSnapshotAndReset(t *testing.T) {
	d := newTestDeps(t)
	h := NewHandler(d)
	require.NoError(t, d.Registry.AddEnergy("H1_col1", 100))

	var s snapshot.Snapshot
	rr := do(h, http.MethodGet, "/api/snapshot?mode=delta", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	require.Len(t, s.Hubs, 1)

	rr = do(h, http.MethodGet, "/api/snapshot?mode=delta", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Len(t, s.Hubs, 1, "reading a delta does not acknowledge it")

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/api/dirty/reset", "").Code)
	rr = do(h, http.MethodGet, "/api/snapshot?mode=delta", "")
	s = snapshot.Snapshot{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Empty(t, s.Hubs)

	rr = do(h, http.MethodGet, "/api/snapshot", "")
	s = snapshot.Snapshot{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.True(t, s.Full)
	assert.Len(t, s.Hubs, 1)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/snapshot?mode=weird", "").Code)
}

func TestHubsAndStats(t *testing.T) {
	d := newTestDeps(t)
	h := NewHandler(d)
	require.NoError(t, d.Registry.IncrementOccupancy("H1_col1", "v1", 0))

	var hubs []hubSummary
	rr := do(h, http.MethodGet, "/api/hubs", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hubs))
	require.Len(t, hubs, 1)
	assert.Equal(t, 1, hubs[0].Occupancy)
	assert.Equal(t, 2, hubs[0].Chargers)

	var sum stats.Summary
	rr = do(h, http.MethodGet, "/api/stats", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 0.5, sum.MeanOccupancy)

	var c charging.ChargerState
	rr = do(h, http.MethodGet, "/api/chargers/H1_col1", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, "v1", c.OccupyingVehicle)
}

func TestSessions(t *testing.T) {
	d := newTestDeps(t)
	assert.Equal(t, http.StatusNotFound, do(NewHandler(d), http.MethodGet, "/api/sessions", "").Code)
	assert.Equal(t, http.StatusNotFound, do(NewHandler(d), http.MethodGet, "/api/sessions/log", "").Code)

	d.Sessions = staticSessions{{ID: "s1", VehicleID: "v1", ChargerID: "H1_col1", HubID: "H1"}}
	now := time.Now().UTC()
	d.SessionLog = memLog{
		{Timestamp: now, SessionID: "a", VehicleID: "v1", HubID: "H1"},
		{Timestamp: now, SessionID: "b", VehicleID: "v2", HubID: "H1"},
	}
	h := NewHandler(d)

	var open []assignment.Session
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/sessions", "").Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, "s1", open[0].ID)

	var logged []sessionlog.Record
	require.NoError(t, json.Unmarshal(do(h, http.MethodGet, "/api/sessions/log?vehicle_id=v2", "").Body.Bytes(), &logged))
	require.Len(t, logged, 1)
	assert.Equal(t, "b", logged[0].SessionID)
}

func TestHubKPIs(t *testing.T) {
	d := newTestDeps(t)
	store := kpi.NewMemoryStore()
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Add(kpi.Record{HubID: "H1", Date: day, DeliveredKWh: 10, Sessions: 4}))
	d.KPI = store
	h := NewHandler(d)

	rr := do(h, http.MethodGet, "/api/hubs/H1/kpis?start=2024-03-01T00:00:00Z&end=2024-03-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []struct {
		Date           string  `json:"date"`
		DeliveredKWh   float64 `json:"delivered_kwh"`
		Sessions       int     `json:"sessions"`
		MeanSessionKWh float64 `json:"mean_session_kwh"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "2024-03-01", out[0].Date)
	assert.Equal(t, 2.5, out[0].MeanSessionKWh)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/hubs/H9/kpis", "").Code)
}

func TestAuth(t *testing.T) {
	d := newTestDeps(t)
	d.Token = "secret"
	h := NewHandler(d)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/hubs", "").Code)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/hubs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evhub/core/charging"
	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/fleet"
	"github.com/kilianp07/evhub/core/snapshot"
	"github.com/kilianp07/evhub/infra/logger"
)

type capturePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     error
	// during runs inside Publish, after the snapshot was taken.
	during func()
}

func (c *capturePublisher) Publish(_ context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.during != nil {
		c.during()
	}
	if c.fail != nil {
		return c.fail
	}
	c.payloads = append(c.payloads, p)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) last(t *testing.T) snapshot.Snapshot {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.payloads)
	var s snapshot.Snapshot
	require.NoError(t, json.Unmarshal(c.payloads[len(c.payloads)-1], &s))
	return s
}

type hubRecorder struct {
	coremetrics.NopSink
	events []coremetrics.HubStateEvent
}

func (h *hubRecorder) RecordHubState(ev coremetrics.HubStateEvent) error {
	h.events = append(h.events, ev)
	return nil
}

func newLoop(t *testing.T, cfg Config, pub *capturePublisher, opts ...Option) (*Loop, *charging.Registry, *fleet.Fleet, *prometheus.Registry) {
	t.Helper()
	infra := charging.Infrastructure{Hubs: []charging.HubSpec{{ID: "H1", LinkID: "L100"}, {ID: "H2", LinkID: "L200"}}}
	for _, hub := range []string{"H1", "H2"} {
		for i := 1; i <= 2; i++ {
			infra.Chargers = append(infra.Chargers, charging.ChargerSpec{
				ID: fmt.Sprintf("%s_col%d", hub, i), HubID: hub, Plugs: []string{"AC"}, PowerW: 11000,
			})
		}
	}
	reg, err := charging.NewRegistry(infra)
	require.NoError(t, err)
	fl := fleet.New()
	require.NoError(t, fl.Register(fleet.Spec{ID: "v1", Plugs: []string{"AC"}, CapacityJ: 1000}))
	promReg := prometheus.NewRegistry()
	opts = append(opts, WithLogger(logger.NopLogger{}))
	l, err := NewLoop(cfg, snapshot.NewBuilder(reg, fl), reg, pub, promReg, opts...)
	require.NoError(t, err)
	return l, reg, fl, promReg
}

func TestLoop_FirstTickFullThenDeltas(t *testing.T) {
	pub := &capturePublisher{}
	rec := &hubRecorder{}
	l, reg, _, _ := newLoop(t, Config{}, pub, WithSink(rec))
	ctx := context.Background()

	ok, err := l.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	s := pub.last(t)
	assert.True(t, s.Full)
	assert.Len(t, s.Hubs, 2)
	assert.Len(t, s.Vehicles, 1)
	assert.Len(t, rec.events, 2)

	ok, err = l.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty delta is skipped")
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.skipped))

	require.NoError(t, reg.IncrementOccupancy("H2_col1", "v1", 0))
	ok, err = l.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	s = pub.last(t)
	assert.False(t, s.Full)
	require.Len(t, s.Hubs, 1)
	assert.Equal(t, "H2", s.Hubs[0].ID)
	require.Len(t, s.Hubs[0].Chargers, 1)
	require.NotNil(t, s.Hubs[0].Chargers["H2_col1"].OccupyingVehicle)

	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.published.WithLabelValues("full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.published.WithLabelValues("delta")))
}

func TestLoop_FailedPublishKeepsChanges(t *testing.T) {
	pub := &capturePublisher{}
	l, reg, _, _ := newLoop(t, Config{}, pub)
	ctx := context.Background()
	_, err := l.Tick(ctx)
	require.NoError(t, err)

	require.NoError(t, reg.SetIntervalEnergy("H1_col2", 42))
	pub.fail = errors.New("broker down")
	_, err = l.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.failed))

	c, err := reg.Charger("H1_col2")
	require.NoError(t, err)
	assert.Equal(t, 42.0, c.IntervalJ, "interval is not restarted on failure")

	pub.fail = nil
	ok, err := l.Tick(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	s := pub.last(t)
	require.Len(t, s.Hubs, 1)
	assert.Equal(t, 42.0, s.Hubs[0].Chargers["H1_col2"].CurrentInterval)

	c, err = reg.Charger("H1_col2")
	require.NoError(t, err)
	assert.Zero(t, c.IntervalJ, "interval restarts after an accepted publish")
}

func TestLoop_EnergyBookedDuringPublishCarriesOver(t *testing.T) {
	pub := &capturePublisher{}
	l, reg, _, _ := newLoop(t, Config{}, pub)
	ctx := context.Background()
	_, err := l.Tick(ctx)
	require.NoError(t, err)

	require.NoError(t, reg.AddEnergy("H1_col1", 100))
	pub.during = func() { assert.NoError(t, reg.AddEnergy("H1_col1", 30)) }
	ok, err := l.Tick(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, pub.last(t).Hubs[0].Chargers["H1_col1"].CurrentInterval)

	c, err := reg.Charger("H1_col1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, c.IntervalJ)
	assert.Equal(t, 130.0, c.CumulativeJ)

	pub.during = nil
	ok, err = l.Tick(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	s := pub.last(t)
	require.Len(t, s.Hubs, 1)
	assert.Equal(t, 30.0, s.Hubs[0].Chargers["H1_col1"].CurrentInterval)

	c, _ = reg.Charger("H1_col1")
	assert.Zero(t, c.IntervalJ)
}

func TestLoop_FullEvery(t *testing.T) {
	pub := &capturePublisher{}
	l, _, fl, _ := newLoop(t, Config{FullEvery: 2}, pub)
	ctx := context.Background()

	_, err := l.Tick(ctx) // full
	require.NoError(t, err)
	require.NoError(t, fl.AddDistance("v1", 10))
	_, err = l.Tick(ctx) // delta
	require.NoError(t, err)
	assert.False(t, pub.last(t).Full)
	_, err = l.Tick(ctx) // full again
	require.NoError(t, err)
	assert.True(t, pub.last(t).Full)
	assert.Len(t, pub.payloads, 3)
}

func TestConfig(t *testing.T) {
	c := Config{}
	assert.Equal(t, 10.0, c.Interval().Seconds())
	assert.Equal(t, 3.0, c.Timeout().Seconds())
	require.NoError(t, c.Validate())
	assert.Error(t, Config{Transport: "kafka"}.Validate())
	assert.Error(t, Config{FullEvery: -1}.Validate())
}

func TestNewLoop_RequiresCollaborators(t *testing.T) {
	_, err := NewLoop(Config{}, nil, nil, nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

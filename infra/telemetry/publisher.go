// Package telemetry runs the periodic snapshot publish cycle.
//
// Each tick builds a delta snapshot, or a full one on the first tick and
// every FullEvery ticks, encodes it and hands it to a transport. Change
// tracking is acknowledged and the accounting interval restarted only once
// the transport accepted the payload, so a failed publish is retried with
// everything it carried on the next tick.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/evhub/core/charging"
	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/snapshot"
	"github.com/kilianp07/evhub/core/transport"
	"github.com/kilianp07/evhub/infra/logger"
	infmetrics "github.com/kilianp07/evhub/infra/metrics"
)

// Config holds the publish cycle settings.
type Config struct {
	Enabled bool `json:"enabled"`
	// Transport is "mqtt", "nats" or "log".
	Transport       string `json:"transport"`
	IntervalSeconds int    `json:"interval_seconds"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	// FullEvery sends a full snapshot every n ticks. 0 sends only the first.
	FullEvery int `json:"full_every"`
}

func (c Config) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the transport name.
func (c Config) Validate() error {
	switch c.Transport {
	case "", "mqtt", "nats", "log":
	default:
		return fmt.Errorf("unknown telemetry.transport %q", c.Transport)
	}
	if c.FullEvery < 0 {
		return errors.New("telemetry.full_every must be >= 0")
	}
	return nil
}

type loopMetrics struct {
	published *prometheus.CounterVec
	failed    prometheus.Counter
	skipped   prometheus.Counter
	last      prometheus.Gauge
	size      prometheus.Histogram
}

func newLoopMetrics(reg prometheus.Registerer) (*loopMetrics, error) {
	var (
		m   loopMetrics
		err error
	)
	if m.published, err = infmetrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_snapshots_published_total", Help: "Snapshots accepted by the transport",
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	if m.failed, err = infmetrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_snapshots_failed_total", Help: "Snapshots the transport rejected",
	})); err != nil {
		return nil, err
	}
	if m.skipped, err = infmetrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_snapshots_skipped_total", Help: "Ticks with an empty delta",
	})); err != nil {
		return nil, err
	}
	if m.last, err = infmetrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_last_publish_timestamp_seconds", Help: "Unix timestamp of the last accepted snapshot",
	})); err != nil {
		return nil, err
	}
	if m.size, err = infmetrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "telemetry_snapshot_bytes", Help: "Encoded snapshot size", Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	})); err != nil {
		return nil, err
	}
	return &m, nil
}

// Loop publishes snapshots of one registry and fleet.
type Loop struct {
	cfg      Config
	builder  *snapshot.Builder
	registry *charging.Registry
	pub      transport.Publisher
	sink     coremetrics.MetricsSink
	log      logger.Logger
	metrics  *loopMetrics

	mu    sync.Mutex
	ticks int
}

// Option configures a Loop.
type Option func(*Loop)

// WithSink records a hub state sample for every hub of each accepted
// snapshot when the sink implements coremetrics.HubStateRecorder.
func WithSink(s coremetrics.MetricsSink) Option { return func(l *Loop) { l.sink = s } }

// WithLogger sets the loop logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoop creates a publish loop. Counters are registered on reg, or on
// the default registerer when reg is nil.
func NewLoop(cfg Config, b *snapshot.Builder, reg *charging.Registry, pub transport.Publisher, promReg prometheus.Registerer, opts ...Option) (*Loop, error) {
	if b == nil || reg == nil || pub == nil {
		return nil, errors.New("telemetry: builder, registry and publisher are required")
	}
	if promReg == nil {
		promReg = prometheus.DefaultRegisterer
	}
	m, err := newLoopMetrics(promReg)
	if err != nil {
		return nil, err
	}
	l := &Loop{cfg: cfg, builder: b, registry: reg, pub: pub, log: logger.New("telemetry"), metrics: m}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Tick(ctx); err != nil {
				l.log.Warnf("snapshot publish: %v", err)
			}
		}
	}
}

// Tick runs one publish cycle and reports whether a snapshot was accepted.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	full := l.ticks == 0 || (l.cfg.FullEvery > 0 && l.ticks%l.cfg.FullEvery == 0)
	var snap snapshot.Snapshot
	if full {
		snap = l.builder.Full()
	} else {
		snap = l.builder.Delta()
		if snap.Empty() {
			l.ticks++
			l.metrics.skipped.Inc()
			return false, nil
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout())
	defer cancel()
	if err := l.pub.Publish(pctx, payload); err != nil {
		l.metrics.failed.Inc()
		return false, err
	}

	l.builder.Ack(snap)
	l.registry.StartInterval(snap.Intervals())
	l.ticks++

	mode := "delta"
	if full {
		mode = "full"
	}
	l.metrics.published.WithLabelValues(mode).Inc()
	l.metrics.last.SetToCurrentTime()
	l.metrics.size.Observe(float64(len(payload)))
	l.log.Debugf("published %s snapshot: %d hubs, %d vehicles, %d bytes", mode, len(snap.Hubs), len(snap.Vehicles), len(payload))
	l.recordHubs(snap)
	return true, nil
}

func (l *Loop) recordHubs(snap snapshot.Snapshot) {
	rec, ok := l.sink.(coremetrics.HubStateRecorder)
	if !ok {
		return
	}
	for _, h := range snap.Hubs {
		err := rec.RecordHubState(coremetrics.HubStateEvent{
			HubID:        h.ID,
			LinkID:       h.LinkID,
			Occupancy:    h.Occupancy,
			Capacity:     h.Capacity,
			TotalEnergyJ: h.TotalEnergy,
			Time:         snap.TakenAt,
		})
		if err != nil {
			l.log.Warnf("record hub state %s: %v", h.ID, err)
		}
	}
}

// LogPublisher writes snapshots to a logger. It is used when no broker is
// configured.
type LogPublisher struct {
	Log logger.Logger
}

func (p LogPublisher) Publish(_ context.Context, payload []byte) error {
	p.Log.Infof("snapshot %s", payload)
	return nil
}

func (LogPublisher) Close() error { return nil }

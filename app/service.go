// Package app wires the coordination engine to its transports, stores and
// HTTP surface.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/evhub/api/admin"
	"github.com/kilianp07/evhub/auth"
	"github.com/kilianp07/evhub/config"
	"github.com/kilianp07/evhub/core/assignment"
	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/energy"
	"github.com/kilianp07/evhub/core/events"
	"github.com/kilianp07/evhub/core/fleet"
	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	coremon "github.com/kilianp07/evhub/core/monitoring"
	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/core/snapshot"
	"github.com/kilianp07/evhub/core/transport"
	"github.com/kilianp07/evhub/infra/hubspec"
	"github.com/kilianp07/evhub/infra/logger"
	infmetrics "github.com/kilianp07/evhub/infra/metrics"
	inframon "github.com/kilianp07/evhub/infra/monitoring"
	"github.com/kilianp07/evhub/infra/mqtt"
	"github.com/kilianp07/evhub/infra/natsbus"
	"github.com/kilianp07/evhub/infra/telemetry"
	"github.com/kilianp07/evhub/internal/eventbus"
	"github.com/kilianp07/evhub/jobs/kpibackfill"
)

// Service owns the engine state and the goroutines feeding it. Events are
// applied by a single loop in arrival order.
type Service struct {
	Registry    *charging.Registry
	Fleet       *fleet.Fleet
	Builder     *snapshot.Builder
	Coordinator *assignment.Coordinator

	cfg        *config.Config
	charger    *energy.ConstantPower
	bus        *eventbus.TypedBus[events.Notification]
	sink       coremetrics.MetricsSink
	sessionLog sessionlog.LogStore
	kpi        kpi.Store
	monitor    coremon.Monitor
	promReg    *prometheus.Registry
	publisher  transport.Publisher
	closers    []io.Closer
	log        logger.Logger

	queue     chan events.Event
	done      chan struct{}
	collected <-chan struct{}
	once      sync.Once

	mu      sync.Mutex
	applied int
	skipped int
}

// Option customizes New.
type Option func(*Service)

// WithPublisher replaces the snapshot transport selected by the
// configuration.
func WithPublisher(p transport.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMonitor replaces the Sentry monitor built from the configuration.
func WithMonitor(m coremon.Monitor) Option {
	return func(s *Service) { s.monitor = m }
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New loads the infrastructure and fleet and builds every collaborator.
// Network transports are connected here so configuration errors surface
// before Run.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	buffer := cfg.Events.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	s := &Service{
		cfg:     cfg,
		log:     logger.New("service"),
		promReg: prometheus.NewRegistry(),
		queue:   make(chan events.Event, buffer),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.monitor == nil {
		m, err := inframon.NewSentryMonitor(cfg.Sentry)
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		s.monitor = m
	}

	if err := s.loadState(); err != nil {
		return nil, err
	}
	if err := s.buildObservers(); err != nil {
		_ = s.Close()
		return nil, err
	}
	// Runs until Close. Run and Replay both publish to the bus.
	s.collected = infmetrics.StartEventCollector(context.Background(), s.bus, s.sink, s.sessionLog, logger.New("collector"))
	if err := s.buildTransports(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) loadHubs() (charging.Infrastructure, error) {
	hc := s.cfg.Hubs
	if hc.URL == "" {
		return hubspec.LoadHubs(hc.File, logger.New("hubspec"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), hc.Timeout())
	defer cancel()
	client := auth.HTTPClient(ctx, hc.Auth, &http.Client{Timeout: hc.Timeout()})
	return hubspec.FetchHubs(ctx, client, hc.URL, logger.New("hubspec"))
}

func (s *Service) loadState() error {
	infra, err := s.loadHubs()
	if err != nil {
		return fmt.Errorf("load hubs: %w", err)
	}
	reg, err := charging.NewRegistry(infra,
		charging.WithLogger(logger.New("registry")),
		charging.WithStrict(s.cfg.Hubs.Strict))
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	s.Registry = reg

	s.Fleet = fleet.New()
	if s.cfg.Vehicles.File != "" {
		specs, err := hubspec.LoadVehicles(s.cfg.Vehicles.File)
		if err != nil {
			return fmt.Errorf("load vehicles: %w", err)
		}
		for _, v := range specs {
			if err := s.Fleet.Register(v); err != nil {
				s.log.Warnf("skipping vehicle %s: %v", v.ID, err)
			}
		}
	}
	s.Builder = snapshot.NewBuilder(s.Registry, s.Fleet)

	policy, err := charging.NewSelectionPolicy(s.cfg.Assignment.Policy)
	if err != nil {
		return err
	}
	s.charger = energy.NewConstantPower(s.cfg.Assignment.Efficiency)
	bus := eventbus.NewTyped[events.Notification]()
	if _, err := infmetrics.Register(s.promReg, prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "notification_bus_dropped_total",
		Help: "Notifications missed by a subscriber that was not keeping up",
	}, func() float64 { return float64(bus.Dropped()) })); err != nil {
		return err
	}
	s.bus = bus
	coord, err := assignment.NewCoordinator(s.Registry, s.Fleet, s.charger, policy, s.bus,
		logger.New("coordinator"), assignment.Config{
			ChargingActivity: s.cfg.Assignment.ChargingActivity,
			TargetSoC:        s.cfg.Assignment.TargetSoC,
		})
	if err != nil {
		return err
	}
	s.Coordinator = coord
	s.log.Infof("loaded %d hubs, %d chargers, %d vehicles", len(s.Registry.Hubs()), s.Registry.ChargerCount(), s.Fleet.Len())
	return nil
}

func (s *Service) buildObservers() error {
	store, err := sessionlog.Open(s.cfg.SessionLog)
	if err != nil {
		return fmt.Errorf("session log: %w", err)
	}
	if store != nil {
		s.sessionLog = store
		s.closers = append(s.closers, store)
	}

	sink, err := coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sinks: %w", err)
	}
	if spec := s.cfg.Metrics.KPIStore; spec != "" {
		kstore, err := infmetrics.OpenKPIStore(spec)
		if err != nil {
			return fmt.Errorf("kpi store: %w", err)
		}
		s.kpi = kstore
		if c, ok := kstore.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
		// A memory store starts empty; rebuild it from past sessions.
		if _, ok := kstore.(*kpi.MemoryStore); ok && s.sessionLog != nil {
			n, err := kpibackfill.FromLog(context.Background(), kstore, s.sessionLog)
			if err != nil {
				return fmt.Errorf("kpi backfill: %w", err)
			}
			s.log.Infof("kpi store rebuilt from %d logged sessions", n)
		}
		kpiSink, err := infmetrics.NewKPISink(kstore, s.promReg)
		if err != nil {
			return err
		}
		sink = coremetrics.NewMultiSink(sink, kpiSink)
	}
	s.sink = sink
	return nil
}

func (s *Service) buildTransports() error {
	tcfg := s.cfg.Telemetry
	needMQTT := s.cfg.Events.Source == "mqtt" || (tcfg.Enabled && tcfg.Transport == "mqtt" && s.publisher == nil)
	needNATS := s.cfg.Events.Source == "nats" || (tcfg.Enabled && tcfg.Transport == "nats" && s.publisher == nil)

	if needMQTT {
		opts := []mqtt.Option{mqtt.WithLogger(logger.New("mqtt")), mqtt.WithMonitor(s.monitor)}
		if s.cfg.Events.Source == "mqtt" {
			opts = append(opts, mqtt.WithEventHandler(s.Enqueue))
		}
		client, err := mqtt.NewPahoClient(s.cfg.MQTT, opts...)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		s.closers = append(s.closers, client)
		if s.publisher == nil && tcfg.Transport == "mqtt" {
			s.publisher = client
		}
	}
	if needNATS {
		pub, err := natsbus.NewPublisher(s.cfg.NATS, logger.New("nats"))
		if err != nil {
			return err
		}
		s.closers = append(s.closers, pub)
		if s.cfg.Events.Source == "nats" {
			if err := pub.SubscribeEvents(s.Enqueue); err != nil {
				return fmt.Errorf("nats subscribe: %w", err)
			}
		}
		if s.publisher == nil && tcfg.Transport == "nats" {
			s.publisher = pub
		}
	}
	if s.publisher == nil {
		s.publisher = telemetry.LogPublisher{Log: logger.New("snapshot")}
	}
	return nil
}

// Enqueue hands an event to the loop. It blocks while the queue is full
// and drops the event once the service is closed.
func (s *Service) Enqueue(ev events.Event) {
	select {
	case s.queue <- ev:
	case <-s.done:
	}
}

// Apply handles one event on the caller's goroutine. Energy delivered up to
// the event's time is booked first, then charging completions due by then.
// A conflict either aborts (returned) or is reported and skipped, depending
// on assignment.on_conflict.
func (s *Service) Apply(ctx context.Context, ev events.Event) error {
	for _, a := range s.charger.Accrue(ev.SimTime()) {
		if err := s.Coordinator.Deliver(a.VehicleID, a.ChargerID, a.EnergyJ); err != nil {
			return err
		}
	}
	for _, due := range s.charger.Due(ev.SimTime()) {
		if err := s.handle(ctx, due); err != nil {
			return err
		}
	}
	return s.handle(ctx, ev)
}

func (s *Service) handle(ctx context.Context, ev events.Event) error {
	err := s.Coordinator.Handle(ctx, ev)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.applied++
		return nil
	}
	s.monitor.CaptureException(err, map[string]string{"module": "coordinator", "event": ev.Kind()})
	if s.cfg.Assignment.OnConflict == config.OnConflictSkip {
		s.skipped++
		s.log.Warnw("event skipped", map[string]any{"event": ev.Kind(), "time": ev.SimTime(), "error": err.Error()})
		return nil
	}
	return fmt.Errorf("%s at %.0f: %w", ev.Kind(), ev.SimTime(), err)
}

// Counts returns the number of applied and skipped events.
func (s *Service) Counts() (applied, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied, s.skipped
}

// Replay applies a JSON lines event stream in order. Blank lines are
// ignored. It returns the number of events read.
func (s *Service) Replay(ctx context.Context, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n, line := 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ev, err := events.Decode([]byte(text))
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
		if err := s.Apply(ctx, ev); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return n, sc.Err()
}

// Handler returns the admin API with the Prometheus endpoint mounted on
// the configured metrics path.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	path := s.cfg.API.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, s.promReg}, promhttp.HandlerOpts{}))
	mux.Handle("/", admin.NewHandler(admin.Deps{
		Registry:   s.Registry,
		Builder:    s.Builder,
		Sessions:   s.Coordinator,
		SessionLog: s.sessionLog,
		KPI:        s.kpi,
		Token:      s.cfg.API.Token,
	}))
	return mux
}

// Run starts the telemetry loop and the HTTP server, then
// applies queued events until ctx is cancelled or an event aborts the run.
func (s *Service) Run(ctx context.Context) error {
	defer s.monitor.Recover()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.cfg.Telemetry.Enabled {
		loop, err := telemetry.NewLoop(s.cfg.Telemetry, s.Builder, s.Registry, s.publisher, s.promReg,
			telemetry.WithSink(s.sink), telemetry.WithLogger(logger.New("telemetry")))
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}

	serverErr := make(chan error, 1)
	if addr := s.cfg.API.Address; addr != "" {
		srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.log.Infof("api listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err := s.loop(ctx, serverErr)
	cancel()
	wg.Wait()
	return err
}

func (s *Service) loop(ctx context.Context, serverErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serverErr:
			return fmt.Errorf("api server: %w", err)
		case ev := <-s.queue:
			if err := s.Apply(ctx, ev); err != nil {
				s.log.Errorf("aborting: %v", err)
				return err
			}
		}
	}
}

// Snapshot returns a full snapshot without touching change tracking.
func (s *Service) Snapshot() snapshot.Snapshot { return s.Builder.Full() }

// Close stops accepting events and releases transports and stores.
func (s *Service) Close() error {
	var errs []error
	s.once.Do(func() {
		close(s.done)
		if s.bus != nil {
			s.bus.Close()
		}
		if s.collected != nil {
			<-s.collected
		}
		if s.bus != nil && s.bus.Dropped() > 0 {
			s.log.Warnf("%d notifications were dropped by lagging subscribers", s.bus.Dropped())
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.monitor != nil {
			s.monitor.Flush(2 * time.Second)
		}
	})
	return errors.Join(errs...)
}

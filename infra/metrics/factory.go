package metrics

import (
	"fmt"
	"strings"

	"github.com/kilianp07/evhub/core/factory"
	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	infrakpi "github.com/kilianp07/evhub/infra/kpi"
	"github.com/prometheus/client_golang/prometheus"
)

// init registers built-in metrics sinks.
func init() {
	coremetrics.MustRegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	coremetrics.MustRegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Port string `json:"prometheus_port"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		// Port is used by the HTTP server only; PromSink itself doesn't use it.
		sink, err := NewPromSinkWithRegistry(coremetrics.Config{PrometheusPort: c.Port}, prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		return sink, nil
	})

	coremetrics.MustRegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.URL == "" {
			return nil, fmt.Errorf("influx sink: url required")
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})

	coremetrics.MustRegisterMetricsSink("kpi", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Store string `json:"store"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		store, err := OpenKPIStore(c.Store)
		if err != nil {
			return nil, err
		}
		sink, err := NewKPISink(store, prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		return sink, nil
	})
}

// OpenKPIStore parses "memory" (or empty) and "sqlite:<path>".
func OpenKPIStore(spec string) (kpi.Store, error) {
	switch {
	case spec == "" || spec == "memory":
		return kpi.NewMemoryStore(), nil
	case strings.HasPrefix(spec, "sqlite:"):
		s, err := infrakpi.NewSQLiteStore(strings.TrimPrefix(spec, "sqlite:"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown kpi store %q", spec)
}

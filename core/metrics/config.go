package metrics

import "github.com/kilianp07/evhub/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	PrometheusPort string                 `json:"prometheus_port" yaml:"prometheus_port"`
	// KPIStore selects where daily hub KPIs are aggregated: "memory" or a
	// SQLite file path prefixed with "sqlite:". Empty disables KPIs.
	KPIStore string `json:"kpi_store" yaml:"kpi_store"`
}

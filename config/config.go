package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/evhub/auth"
	"github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/monitoring"
	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/infra/mqtt"
	"github.com/kilianp07/evhub/infra/natsbus"
	"github.com/kilianp07/evhub/infra/telemetry"
)

// Config is the root of the evhub configuration file.
type Config struct {
	Hubs       HubsConfig        `json:"hubs"`
	Vehicles   VehiclesConfig    `json:"vehicles"`
	Assignment AssignmentConfig  `json:"assignment"`
	Events     EventsConfig      `json:"events"`
	Telemetry  telemetry.Config  `json:"telemetry"`
	MQTT       mqtt.Config       `json:"mqtt"`
	NATS       natsbus.Config    `json:"nats"`
	Metrics    metrics.Config    `json:"metrics"`
	SessionLog sessionlog.Config `json:"session_log"`
	API        APIConfig         `json:"api"`
	Sentry     monitoring.Config `json:"sentry"`
	Logging    LoggingConfig     `json:"logging"`
}

// Load reads a YAML or JSON file and applies K_ prefixed environment
// overrides, where a double underscore separates nested keys
// (K_TELEMETRY__INTERVAL_SECONDS=5).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Assignment.SetDefaults()
	c.Events.SetDefaults()
	c.API.SetDefaults()
	c.Logging.SetDefaults()
	c.MQTT.SetDefaults()
	c.NATS.SetDefaults()
	if c.Telemetry.Transport == "" {
		c.Telemetry.Transport = "log"
	}
}

// Validate checks every section and the transports they reference.
func (c *Config) Validate() error {
	var errs []error
	if c.Hubs.File == "" && c.Hubs.URL == "" {
		errs = append(errs, errors.New("hubs.file or hubs.url is required"))
	}
	errs = append(errs,
		c.Assignment.Validate(),
		c.Events.Validate(),
		c.Telemetry.Validate(),
		c.SessionLog.Validate(),
		c.Logging.Validate(),
	)
	needsMQTT := c.Events.Source == "mqtt" || (c.Telemetry.Enabled && c.Telemetry.Transport == "mqtt")
	if needsMQTT {
		errs = append(errs, c.MQTT.Validate())
	}
	return errors.Join(errs...)
}

// HubsConfig locates the charging infrastructure, either a local file or
// an inventory endpoint. URL wins when both are set.
type HubsConfig struct {
	File string `json:"file"`
	URL  string `json:"url"`
	// Auth enables OAuth2 client credentials on URL.
	Auth           auth.Conf `json:"auth"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	// Strict rejects the whole file on the first invalid record.
	Strict bool `json:"strict"`
}

// Timeout bounds the inventory download.
func (c HubsConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// VehiclesConfig locates the fleet. An empty file leaves the fleet empty
// and every movement event for unknown vehicles is ignored.
type VehiclesConfig struct {
	File string `json:"file"`
}

// APIConfig configures the admin HTTP server.
type APIConfig struct {
	Address     string `json:"address"`
	Token       string `json:"token"`
	MetricsPath string `json:"metrics_path"`
}

func (c *APIConfig) SetDefaults() {
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

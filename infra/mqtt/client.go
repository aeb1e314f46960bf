package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/evhub/core/events"
	coremon "github.com/kilianp07/evhub/core/monitoring"
	"github.com/kilianp07/evhub/core/transport"
	"github.com/kilianp07/evhub/infra/logger"
)

const (
	DefaultSnapshotTopic = "evhub/snapshot"
	DefaultEventTopic    = "evhub/events"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker        string          `json:"broker"`
	ClientID      string          `json:"client_id"`
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	SnapshotTopic string          `json:"snapshot_topic"`
	EventTopic    string          `json:"event_topic"`
	Retain        bool            `json:"retain"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	TLSConfig     *tls.Config     `json:"-"`
}

// SetDefaults fills topics, client id and retry settings.
func (c *Config) SetDefaults() {
	if c.SnapshotTopic == "" {
		c.SnapshotTopic = DefaultSnapshotTopic
	}
	if c.EventTopic == "" {
		c.EventTopic = DefaultEventTopic
	}
	if c.ClientID == "" {
		c.ClientID = "evhub-" + uuid.NewString()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("unknown mqtt.auth_method %q", c.AuthMethod)
	}
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2", k)
		}
	}
	return nil
}

func (c Config) qos(kind string) byte {
	if q, ok := c.QoS[kind]; ok {
		return q
	}
	return 0
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Option configures a PahoClient.
type Option func(*PahoClient)

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(p *PahoClient) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMonitor reports publish failures to m.
func WithMonitor(m coremon.Monitor) Option {
	return func(p *PahoClient) { p.mon = coremon.OrNop(m) }
}

// WithEventHandler subscribes to the event topic on every (re)connect and
// passes each decoded simulation event to h. Messages are delivered in
// arrival order on the client's callback goroutine.
func WithEventHandler(h func(events.Event)) Option {
	return func(p *PahoClient) { p.onEvent = h }
}

// PahoClient publishes snapshots and optionally consumes simulation events
// over MQTT using Eclipse Paho.
type PahoClient struct {
	cli     pahoClient
	cfg     Config
	log     logger.Logger
	mon     coremon.Monitor
	onEvent func(events.Event)

	mu       sync.Mutex
	received uint64
	rejected uint64
}

var _ transport.Publisher = (*PahoClient)(nil)

// NewPahoClient connects to the MQTT broker.
func NewPahoClient(cfg Config, opts ...Option) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	copts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	pc := &PahoClient{cfg: cfg, log: logger.New("mqtt_client"), mon: coremon.NopMonitor{}}
	for _, o := range opts {
		o(pc)
	}

	copts.OnConnect = func(c paho.Client) {
		pc.log.Infof("MQTT connected to %s", cfg.Broker)
		if pc.onEvent == nil {
			return
		}
		if token := c.Subscribe(cfg.EventTopic, cfg.qos("events"), pc.handleEvent); token.Wait() && token.Error() != nil {
			pc.log.Errorf("subscribe %s: %v", cfg.EventTopic, token.Error())
		}
	}
	copts.OnConnectionLost = func(_ paho.Client, err error) {
		pc.log.Errorf("connection lost: %v", err)
	}
	copts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		pc.log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(copts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetOrderMatters(true)
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "certificate" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) handleEvent(_ paho.Client, msg paho.Message) {
	ev, err := events.Decode(msg.Payload())
	p.mu.Lock()
	if err != nil {
		p.rejected++
	} else {
		p.received++
	}
	p.mu.Unlock()
	if err != nil {
		p.log.Warnf("drop event on %s: %v", msg.Topic(), err)
		return
	}
	p.onEvent(ev)
}

// EventCounts reports how many event messages were accepted and rejected.
func (p *PahoClient) EventCounts() (received, rejected uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received, p.rejected
}

// Publish sends payload to the snapshot topic, retrying with exponential
// backoff. It returns only once the broker confirmed the publish for the
// configured QoS or every attempt failed.
func (p *PahoClient) Publish(ctx context.Context, payload []byte) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return transport.ErrNotConnected
	}
	topic := p.cfg.SnapshotTopic
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.qos("snapshot"), p.cfg.Retain, payload)
		select {
		case <-token.Done():
			publishErr = token.Error()
		case <-ctx.Done():
			publishErr = fmt.Errorf("%w: %v", transport.ErrPublishTimeout, ctx.Err())
		}
		if publishErr == nil {
			p.log.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if ctx.Err() != nil || attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff * time.Duration(1<<attempt)):
		case <-ctx.Done():
		}
	}
	p.mon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return publishErr
}

// Close gracefully closes the MQTT connection.
func (p *PahoClient) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}

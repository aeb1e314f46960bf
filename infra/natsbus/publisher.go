// Package natsbus publishes snapshots and consumes simulation events over a
// NATS connection.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/kilianp07/evhub/core/events"
	"github.com/kilianp07/evhub/core/transport"
	"github.com/kilianp07/evhub/infra/logger"
)

const (
	DefaultSnapshotSubject = "evhub.snapshot"
	DefaultEventSubject    = "evhub.events"
)

// Config defines the NATS connection.
type Config struct {
	URL             string `json:"url"`
	Name            string `json:"name"`
	SnapshotSubject string `json:"snapshot_subject"`
	EventSubject    string `json:"event_subject"`
	// FlushTimeoutMS bounds how long Publish waits for the server to
	// confirm the payload when the caller's context has no deadline.
	FlushTimeoutMS int `json:"flush_timeout_ms"`
}

// SetDefaults fills subjects and timeouts.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "evhub"
	}
	if c.SnapshotSubject == "" {
		c.SnapshotSubject = DefaultSnapshotSubject
	}
	if c.EventSubject == "" {
		c.EventSubject = DefaultEventSubject
	}
	if c.FlushTimeoutMS <= 0 {
		c.FlushTimeoutMS = 2000
	}
}

// conn is the subset of *nats.Conn used here.
type conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

var dial = func(c Config, log logger.Logger) (conn, error) {
	nc, err := nats.Connect(c.URL,
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// Publisher implements transport.Publisher on NATS.
type Publisher struct {
	nc  conn
	cfg Config
	log logger.Logger
}

var _ transport.Publisher = (*Publisher)(nil)

// NewPublisher connects to the server.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	if log == nil {
		log = logger.New("nats")
	}
	nc, err := dial(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return &Publisher{nc: nc, cfg: cfg, log: log}, nil
}

// Publish sends payload and flushes, so a nil error means the server
// received it.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	if err := p.nc.Publish(p.cfg.SnapshotSubject, payload); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return transport.ErrNotConnected
		}
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.FlushTimeoutMS)*time.Millisecond)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", transport.ErrPublishTimeout, err)
		}
		return err
	}
	p.log.Debugf("published %d bytes to %s", len(payload), p.cfg.SnapshotSubject)
	return nil
}

// SubscribeEvents decodes every message on the event subject and passes it
// to h. Undecodable messages are logged and dropped.
func (p *Publisher) SubscribeEvents(h func(events.Event)) error {
	_, err := p.nc.Subscribe(p.cfg.EventSubject, func(m *nats.Msg) {
		ev, err := events.Decode(m.Data)
		if err != nil {
			p.log.Warnf("drop event on %s: %v", m.Subject, err)
			return
		}
		h(ev)
	})
	return err
}

// Close closes the connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}

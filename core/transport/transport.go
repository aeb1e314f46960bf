// Package transport defines how encoded snapshots leave the engine.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrPublishTimeout is returned when the broker did not confirm a
	// publish before the context expired.
	ErrPublishTimeout = errors.New("timeout waiting for publish confirmation")
	// ErrNotConnected is returned when publishing on a closed connection.
	ErrNotConnected = errors.New("transport not connected")
)

// Publisher delivers one encoded snapshot. A nil error means the broker
// accepted the payload; only then may the caller acknowledge it.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, payload []byte) error

func (f PublisherFunc) Publish(ctx context.Context, payload []byte) error { return f(ctx, payload) }
func (PublisherFunc) Close() error                                        { return nil }

package events

import (
	"context"
	"encoding/json"

	"github.com/c360/mediaconnector/errors"
)

// Sink receives published events
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, e Event) error

// Deliver implements Sink
func (f SinkFunc) Deliver(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Transport publishes raw payloads. *natsclient.Client satisfies it.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSSink publishes events as JSON on per-tap subjects
type NATSSink struct {
	transport Transport
	prefix    string
}

// NewNATSSink creates a sink publishing under prefix
func NewNATSSink(t Transport, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{transport: t, prefix: prefix}
}

// Deliver implements Sink
func (s *NATSSink) Deliver(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.WrapInvalid(err, "NATSSink", "Deliver", "marshal event")
	}
	if err := s.transport.Publish(ctx, e.Subject(s.prefix), data); err != nil {
		return errors.WrapTransient(err, "NATSSink", "Deliver", "publish event")
	}
	return nil
}

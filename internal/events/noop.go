package events

import "context"

// NoopPublisher drops every event. The daemon falls back to it when
// PROCURE_NATS_URL is unset, so callers never need a nil check.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

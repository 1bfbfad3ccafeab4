// Package server exposes the procurement API over HTTP/JSON and streams
// domain events to connected clients.
package server

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/fernwood/procure/internal/blob"
	"github.com/fernwood/procure/internal/events"
	"github.com/fernwood/procure/internal/resource"
	"github.com/fernwood/procure/internal/schema"
)

// Broadcaster forwards events to an underlying publisher and fans them out
// to SSE subscribers. Construct one, hand it to the resource service as its
// publisher, then hand the same instance to New so the HTTP stream endpoint
// sees the same events.
type Broadcaster struct {
	publisher events.Publisher
	hub       *sseHub
	bridged   atomic.Bool
}

// NewBroadcaster wraps publisher. A nil publisher means SSE-only delivery.
func NewBroadcaster(publisher events.Publisher) *Broadcaster {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &Broadcaster{publisher: publisher, hub: newSSEHub()}
}

func (b *Broadcaster) Publish(ctx context.Context, topic string, event any) error {
	// With an active bus bridge, events reach the hub through the bus so
	// that this instance streams its own mutations exactly once.
	if !b.bridged.Load() {
		b.hub.broadcast(topic, event)
	}
	return b.publisher.Publish(ctx, topic, event)
}

// BridgeSubscriber feeds bus events into the SSE hub. topic is a bus
// subscription pattern such as "procure.>". Once bridged, locally published
// events are no longer fanned out directly; they arrive via the bus along
// with events from other instances. The returned stop function unsubscribes.
func (b *Broadcaster) BridgeSubscriber(sub events.Subscriber, topic string) (func(), error) {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return nil, err
	}
	b.bridged.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			b.hub.broadcastRaw(msg.Topic, msg.Data)
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func (b *Broadcaster) Close() error { return b.publisher.Close() }

// Server wires the schema and resource services to HTTP transport.
type Server struct {
	schemas     *schema.Service
	resources   *resource.Service
	blobs       blob.Store
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// New returns a Server. broadcaster may be nil, in which case server-side
// events are dropped and the stream endpoint never delivers anything.
func New(schemas *schema.Service, resources *resource.Service, blobs blob.Store, broadcaster *Broadcaster, logger *slog.Logger) *Server {
	if broadcaster == nil {
		broadcaster = NewBroadcaster(nil)
	}
	return &Server{
		schemas:     schemas,
		resources:   resources,
		blobs:       blobs,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// publish emits an event from a server-side mutation (field CRUD, account
// provisioning). Failures are logged, never surfaced to the request.
func (s *Server) publish(ctx context.Context, topic string, event any) {
	if err := s.broadcaster.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publish event", "topic", topic, "error", err)
	}
}

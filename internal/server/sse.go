package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sseBufferSize is the number of recent events kept for Last-Event-ID
	// reconnection.
	sseBufferSize = 512

	// sseKeepaliveInterval is how often keepalive comments are sent to
	// prevent idle-connection timeouts.
	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is a single event kept in the replay buffer and sent to clients.
type sseEvent struct {
	ID    uint64 // monotonically increasing sequence number
	Topic string
	Data  []byte // JSON-encoded payload
}

// sseHub fans out published events to connected SSE clients and keeps a
// bounded replay buffer for reconnection.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64

	bufMu  sync.RWMutex
	buf    [sseBufferSize]sseEvent
	bufPos int // next write position, wraps
	bufLen int // valid entries, up to sseBufferSize
}

// sseClient is one connected consumer.
type sseClient struct {
	topics []string       // topic patterns to match (empty = all)
	ch     chan *sseEvent // buffered delivery channel
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// broadcast records the event and delivers it to matching clients. Slow
// clients have events dropped rather than blocking the publisher.
func (h *sseHub) broadcast(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.broadcastRaw(topic, payload)
}

// broadcastRaw is broadcast for payloads that are already JSON, such as
// events arriving from the bus.
func (h *sseHub) broadcastRaw(topic string, payload []byte) {
	evt := &sseEvent{
		ID:    h.nextID.Add(1),
		Topic: topic,
		Data:  payload,
	}

	h.bufMu.Lock()
	h.buf[h.bufPos] = *evt
	h.bufPos = (h.bufPos + 1) % sseBufferSize
	if h.bufLen < sseBufferSize {
		h.bufLen++
	}
	h.bufMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.matchesTopic(topic) {
			select {
			case c.ch <- evt:
			default:
			}
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{
		topics: topics,
		ch:     make(chan *sseEvent, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns buffered events with ID > lastID in order, oldest
// first. Events that have already fallen out of the buffer are gone.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.bufMu.RLock()
	defer h.bufMu.RUnlock()

	if h.bufLen == 0 {
		return nil
	}

	start := h.bufPos - h.bufLen
	if start < 0 {
		start += sseBufferSize
	}

	var out []*sseEvent
	for i := range h.bufLen {
		evt := &h.buf[(start+i)%sseBufferSize]
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

// matchesTopic checks the client's filters against a topic. An empty filter
// list matches everything.
func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a pattern with
// "*" as a single-segment wildcard and ">" as a trailing multi-segment
// wildcard (NATS-style).
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	pp := strings.Split(pattern, ".")
	tp := strings.Split(topic, ".")

	for i, p := range pp {
		if p == ">" {
			return i < len(tp)
		}
		if i >= len(tp) {
			return false
		}
		if p != "*" && p != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

// handleEventStream handles GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var topics []string
	if q := r.URL.Query().Get("topics"); q != "" {
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	client := s.broadcaster.hub.subscribe(topics)
	defer s.broadcaster.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Replay anything the client missed since its Last-Event-ID.
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range s.broadcaster.hub.eventsSince(lastID) {
				if client.matchesTopic(evt.Topic) {
					writeSSEEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Topic)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}

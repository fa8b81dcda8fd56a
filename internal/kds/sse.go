package kds

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

const keepaliveInterval = 30 * time.Second

// Broadcaster fans out board change signals to connected SSE subscribers.
// Subscribers receive a wake-up, not the payload; each connection rebuilds
// its own view snapshot so slow clients never hold back the cache.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan struct{}
	logger      apt.Logger
}

func NewBroadcaster(logger apt.Logger) *Broadcaster {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan struct{}),
		logger:      logger,
	}
}

// Notify wakes every subscriber. Signals coalesce: a subscriber that already
// has a pending wake-up gets nothing extra.
func (b *Broadcaster) Notify() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Signal already pending - skip
		}
	}
}

// Subscribe adds a new subscriber and returns its wake-up channel.
func (b *Broadcaster) Subscribe(subscriberID string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)
	b.subscribers[subscriberID] = ch

	b.logger.Info("new SSE subscriber", "subscriber_id", subscriberID, "total_subscribers", len(b.subscribers))
	return ch
}

// Unsubscribe removes a subscriber.
func (b *Broadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[subscriberID]; ok {
		close(ch)
		delete(b.subscribers, subscriberID)
		b.logger.Info("SSE subscriber disconnected", "subscriber_id", subscriberID, "total_subscribers", len(b.subscribers))
	}
}

// Stop closes all subscriber channels.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// SSEHandler streams kitchen view snapshots over Server-Sent Events.
// Clients receive a full snapshot on connect and a fresh one after every
// board change, plus periodic keepalives.
type SSEHandler struct {
	broadcaster *Broadcaster
	builder     *Builder
	logger      apt.Logger
}

// NewSSEHandler creates a new SSE handler.
func NewSSEHandler(broadcaster *Broadcaster, builder *Builder, logger apt.Logger) *SSEHandler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &SSEHandler{
		broadcaster: broadcaster,
		builder:     builder,
		logger:      logger,
	}
}

// ServeHTTP implements http.Handler for the SSE endpoint.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	h.logger.Info("new SSE connection", "subscriber_id", subscriberID)

	wakeCh := h.broadcaster.Subscribe(subscriberID)
	defer h.broadcaster.Unsubscribe(subscriberID)

	// Establish connection and configure client reconnect interval
	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// Initial snapshot so the display is populated before the first change
	h.sendView(w)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subscriberID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}

		case _, ok := <-wakeCh:
			if !ok {
				h.logger.Info("broadcaster closed", "subscriber_id", subscriberID)
				return
			}
			h.sendView(w)
		}
	}
}

func (h *SSEHandler) sendView(w http.ResponseWriter) {
	view := h.builder.Build()

	payload, err := json.Marshal(view)
	if err != nil {
		h.logger.Error("cannot marshal kitchen view", "error", err)
		return
	}

	fmt.Fprintf(w, "event: kitchen-view\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

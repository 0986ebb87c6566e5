// Package stream exposes the notification bus to authenticated clients over
// long-lived push transports.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/metrics"
	"github.com/habitflow/habitflow/internal/platform/middleware"
)

const transportSSE = "sse"

// SSEHandler serves one text/event-stream connection per request. Each
// connection subscribes to the bus, filters by the caller's identity and
// writes matching events as data frames until the client goes away.
type SSEHandler struct {
	bus       *notify.Bus
	log       logger.Logger
	metrics   *metrics.Metrics
	heartbeat time.Duration
	buffer    int
}

// SSEOption configures an SSEHandler
type SSEOption func(*SSEHandler)

// WithHeartbeat overrides the heartbeat interval
func WithHeartbeat(d time.Duration) SSEOption {
	return func(h *SSEHandler) { h.heartbeat = d }
}

// WithBuffer overrides the per-connection event buffer size
func WithBuffer(n int) SSEOption {
	return func(h *SSEHandler) { h.buffer = n }
}

// WithMetrics enables delivery metrics
func WithMetrics(m *metrics.Metrics) SSEOption {
	return func(h *SSEHandler) { h.metrics = m }
}

// NewSSEHandler creates the stream endpoint handler
func NewSSEHandler(bus *notify.Bus, log logger.Logger, opts ...SSEOption) *SSEHandler {
	h := &SSEHandler{
		bus:       bus,
		log:       log,
		heartbeat: 30 * time.Second,
		buffer:    16,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		// No stream is opened for unauthenticated callers
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Lets the client distinguish "connected, idle" from "still connecting"
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	// The bus callback runs on publisher goroutines; it hands events to
	// this connection's writer loop over a buffered channel. A full
	// buffer drops the event for this connection only.
	events := make(chan *notify.Event, h.buffer)
	unsubscribe := h.bus.Subscribe(func(e *notify.Event) {
		if e.RecipientUserID != userID {
			return
		}
		select {
		case events <- e:
		default:
			if h.metrics != nil {
				h.metrics.EventsDropped.WithLabelValues(transportSSE).Inc()
			}
		}
	})
	defer unsubscribe()

	if h.metrics != nil {
		h.metrics.StreamsActive.WithLabelValues(transportSSE).Inc()
		defer h.metrics.StreamsActive.WithLabelValues(transportSSE).Dec()
	}

	h.log.Debug("notification stream opened", "user_id", userID)
	defer h.log.Debug("notification stream closed", "user_id", userID)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client went away or server is shutting down
			return

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				// Peer gone; cleanup runs via defers
				return
			}
			flusher.Flush()

		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				h.log.Error("failed to marshal notification", "event_id", e.ID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
			if h.metrics != nil {
				h.metrics.EventsDelivered.WithLabelValues(transportSSE).Inc()
			}
		}
	}
}

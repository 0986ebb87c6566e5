package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/metrics"
	"github.com/habitflow/habitflow/internal/platform/middleware"
)

const transportWS = "ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler is the WebSocket counterpart of SSEHandler, for clients that
// cannot hold an EventSource connection. Delivery semantics are identical:
// recipient-filtered JSON events, periodic pings, silent cleanup.
type WSHandler struct {
	bus       *notify.Bus
	log       logger.Logger
	metrics   *metrics.Metrics
	heartbeat time.Duration
	buffer    int
}

// NewWSHandler creates the WebSocket stream handler
func NewWSHandler(bus *notify.Bus, log logger.Logger, opts ...SSEOption) *WSHandler {
	base := NewSSEHandler(bus, log, opts...)
	return &WSHandler{
		bus:       bus,
		log:       log,
		metrics:   base.metrics,
		heartbeat: base.heartbeat,
		buffer:    base.buffer,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	events := make(chan *notify.Event, h.buffer)
	unsubscribe := h.bus.Subscribe(func(e *notify.Event) {
		if e.RecipientUserID != userID {
			return
		}
		select {
		case events <- e:
		default:
			if h.metrics != nil {
				h.metrics.EventsDropped.WithLabelValues(transportWS).Inc()
			}
		}
	})

	if h.metrics != nil {
		h.metrics.StreamsActive.WithLabelValues(transportWS).Inc()
	}

	done := make(chan struct{})

	// Read loop exists only to observe the close handshake; inbound
	// payloads are ignored.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// The pump runs on the request goroutine so the request context stays
	// live: once the connection is hijacked, that context is the only way
	// server shutdown still reaches this stream.
	h.writePump(r.Context(), conn, userID, events, unsubscribe, done)
}

func (h *WSHandler) writePump(ctx context.Context, conn *websocket.Conn, userID int64, events chan *notify.Event, unsubscribe func(), done chan struct{}) {
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
		if h.metrics != nil {
			h.metrics.StreamsActive.WithLabelValues(transportWS).Dec()
		}
		h.log.Debug("websocket stream closed", "user_id", userID)
	}()

	for {
		select {
		case <-ctx.Done():
			// Server is shutting down; tell the peer before dropping it
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return

		case <-done:
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case e := <-events:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.EventsDelivered.WithLabelValues(transportWS).Inc()
			}
		}
	}
}

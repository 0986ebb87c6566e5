package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/middleware"
)

// authAs wraps a handler, stamping the given user identity on every request
func authAs(userID int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
	})
}

func TestSSERejectsUnauthenticated(t *testing.T) {
	bus := notify.NewBus()
	handler := NewSSEHandler(bus, logger.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 0, bus.Len(), "no subscription for rejected caller")
}

func TestSSEDeliversOnlyToRecipient(t *testing.T) {
	bus := notify.NewBus()
	handler := NewSSEHandler(bus, logger.NewNop())

	ts := httptest.NewServer(authAs(42, handler))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", resp.Header.Get("Cache-Control"))

	reader := bufio.NewReader(resp.Body)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected", strings.TrimSpace(line))

	// Wait for the handler goroutine to register its bus subscription
	require.Eventually(t, func() bool { return bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	matching := notify.NewEvent(notify.EventPostLiked, 42)
	matching.ID = "for-42"
	bus.Publish(matching)

	other := notify.NewEvent(notify.EventPostLiked, 7)
	other.ID = "for-7"
	bus.Publish(other)

	tail := notify.NewEvent(notify.EventPostLiked, 42)
	tail.ID = "tail"
	bus.Publish(tail)

	var frames []string
	for len(frames) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, line)
		}
	}

	// The frame for recipient 7 must never appear on this stream
	assert.Contains(t, frames[0], `"for-42"`)
	assert.Contains(t, frames[1], `"tail"`)
	assert.NotContains(t, frames[0], "for-7")
	assert.NotContains(t, frames[1], "for-7")
}

func TestSSECleansUpOnDisconnect(t *testing.T) {
	bus := notify.NewBus()
	handler := NewSSEHandler(bus, logger.NewNop())

	ts := httptest.NewServer(authAs(42, handler))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	resp.Body.Close()

	require.Eventually(t, func() bool { return bus.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"subscription must be released when the client goes away")
}

func TestSSEHeartbeat(t *testing.T) {
	bus := notify.NewBus()
	handler := NewSSEHandler(bus, logger.NewNop(), WithHeartbeat(20*time.Millisecond))

	ts := httptest.NewServer(authAs(42, handler))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	pings := 0
	for pings < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == ": ping" {
			pings++
		}
	}
	assert.GreaterOrEqual(t, pings, 2, "idle stream keeps emitting heartbeats")
}

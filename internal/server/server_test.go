package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/notify/client"
	"github.com/habitflow/habitflow/internal/platform/config"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/social"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Name: "habitflow-test"},
		HTTP:    config.HTTPConfig{Port: 0},
		Auth:    config.AuthConfig{JWTSecret: testSecret},
		Notify: config.NotifyConfig{
			HeartbeatInterval: 30 * time.Second,
			StreamBuffer:      16,
			StoreCapacity:     50,
			BackoffFloor:      time.Second,
			BackoffCeiling:    30 * time.Second,
		},
		Version: "test",
	}
}

func mintToken(t *testing.T, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) (*Server, *social.StaticDirectory) {
	t.Helper()

	directory := social.NewStaticDirectory()
	srv, err := New(
		WithConfig(testConfig()),
		WithLogger(logger.NewNop()),
		WithDirectory(directory),
	)
	require.NoError(t, err)
	return srv, directory
}

func TestHealthEndpointsSkipAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String(), "stream rejection carries no body")
	assert.Equal(t, 0, srv.Bus().Len())
}

func TestStreamRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String(), "stream rejection carries no body")
}

func TestAPIRejectionKeepsErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	// Non-stream routes still answer with the JSON error envelope
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/posts/10/like", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

// TestLikeToStoreEndToEnd wires the full path: a like request publishes an
// event, the SSE endpoint pushes it to the subscribed client, and the
// client store ends up holding it unread.
func TestLikeToStoreEndToEnd(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.AddPost(10, 42)
	directory.AddUser(7, social.Profile{Name: "Ada"})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	store := client.NewStore(50)
	sub := client.NewSubscriber(ts.URL+"/api/v1/notifications/stream", mintToken(t, 42), store)
	sub.Start()
	defer sub.Close()

	// The stream must be registered before the like fires
	require.Eventually(t, func() bool { return srv.Bus().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/posts/10/like", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, 7))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := store.Recent()[0]
	assert.Equal(t, notify.EventPostLiked, got.Type)
	assert.Equal(t, int64(42), got.RecipientUserID)
	assert.Equal(t, "Ada liked your post", got.Message)
	assert.Equal(t, 1, store.UnreadCount())

	// A like on someone else's post must not reach this subscriber
	directory.AddPost(11, 7)
	directory.AddUser(42, social.Profile{Name: "Grace"})
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/api/v1/posts/11/like", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, 42))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, store.Len())
}

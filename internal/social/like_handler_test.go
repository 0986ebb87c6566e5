package social

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/middleware"
)

func newLikeRouter(bus *notify.Bus, directory Directory) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/v1/posts/{id}/like", NewLikeHandler(bus, directory, logger.NewNop(), nil)).Methods(http.MethodPost)
	return r
}

func likeRequest(path string, userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestLikePublishesNotificationToAuthor(t *testing.T) {
	bus := notify.NewBus()
	directory := NewStaticDirectory()
	directory.AddPost(10, 42)
	directory.AddUser(7, Profile{Name: "Ada", PhotoURL: "https://example.com/ada.png"})

	var got []*notify.Event
	defer bus.Subscribe(func(e *notify.Event) { got = append(got, e) })()

	rec := httptest.NewRecorder()
	newLikeRouter(bus, directory).ServeHTTP(rec, likeRequest("/api/v1/posts/10/like", 7))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, got, 1)
	assert.Equal(t, notify.EventPostLiked, got[0].Type)
	assert.Equal(t, int64(42), got[0].RecipientUserID)
	assert.Equal(t, int64(10), got[0].PostID)
	assert.Equal(t, "Ada", got[0].ActorName)
	assert.Equal(t, "Ada liked your post", got[0].Message)
	assert.NotEmpty(t, got[0].ID)
}

func TestLikeOwnPostNotifiesNobody(t *testing.T) {
	bus := notify.NewBus()
	directory := NewStaticDirectory()
	directory.AddPost(10, 42)
	directory.AddUser(42, Profile{Name: "Ada"})

	published := 0
	defer bus.Subscribe(func(e *notify.Event) { published++ })()

	rec := httptest.NewRecorder()
	newLikeRouter(bus, directory).ServeHTTP(rec, likeRequest("/api/v1/posts/10/like", 42))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, published)
}

func TestLikeUnknownPost(t *testing.T) {
	bus := notify.NewBus()
	directory := NewStaticDirectory()

	rec := httptest.NewRecorder()
	newLikeRouter(bus, directory).ServeHTTP(rec, likeRequest("/api/v1/posts/99/like", 7))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLikeRequiresAuthentication(t *testing.T) {
	bus := notify.NewBus()
	directory := NewStaticDirectory()
	directory.AddPost(10, 42)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/10/like", nil)
	newLikeRouter(bus, directory).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

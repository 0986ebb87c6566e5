// Package social holds the timeline actions that trigger notifications.
// Only the "post liked" trigger lives here; it is the canonical producer
// feeding the notification bus.
package social

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/middleware"
	"github.com/habitflow/habitflow/internal/platform/response"
)

// Profile carries the display attributes of an acting user
type Profile struct {
	Name     string
	PhotoURL string
}

// Directory resolves post and user records. The real implementation lives
// with the habit application's persistence layer; this core only consumes
// plain lookups.
type Directory interface {
	PostAuthor(ctx context.Context, postID int64) (int64, error)
	UserProfile(ctx context.Context, userID int64) (Profile, error)
}

// LikeHandler handles POST /api/v1/posts/{id}/like. Recording the like
// itself belongs to the habit application; this handler's job is to emit
// the notification event for the post author.
type LikeHandler struct {
	bus       *notify.Bus
	directory Directory
	log       logger.Logger
	tracer    trace.Tracer
}

// NewLikeHandler creates the like trigger handler
func NewLikeHandler(bus *notify.Bus, directory Directory, log logger.Logger, tracer trace.Tracer) *LikeHandler {
	return &LikeHandler{
		bus:       bus,
		directory: directory,
		log:       log,
		tracer:    tracer,
	}
}

func (h *LikeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Error(w, response.ErrUnauthorized)
		return
	}

	postID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		response.Error(w, response.ErrBadRequest)
		return
	}

	ctx := r.Context()
	if h.tracer != nil {
		var span trace.Span
		ctx, span = h.tracer.Start(ctx, "social.like")
		span.SetAttributes(
			attribute.Int64("post.id", postID),
			attribute.Int64("actor.id", actorID),
		)
		defer span.End()
	}

	authorID, err := h.directory.PostAuthor(ctx, postID)
	if err != nil {
		response.Error(w, response.ErrNotFound)
		return
	}

	// Liking your own post records the like but notifies nobody
	if authorID != actorID {
		actor, err := h.directory.UserProfile(ctx, actorID)
		if err != nil {
			h.log.Warn("failed to resolve actor profile", "actor_id", actorID, "error", err)
			actor = Profile{Name: "Someone"}
		}

		event := notify.NewEvent(notify.EventPostLiked, authorID)
		event.ActorName = actor.Name
		event.ActorPhotoURL = actor.PhotoURL
		event.PostID = postID
		event.Message = fmt.Sprintf("%s liked your post", actor.Name)

		h.bus.Publish(event)
	}

	response.OK(w, map[string]interface{}{
		"postId": postID,
		"liked":  true,
	})
}

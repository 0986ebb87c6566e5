// Package notify implements the in-process notification event model and the
// publish/subscribe bus that fans events out to live client streams.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType categorizes a notification event
type EventType string

const (
	// EventPostLiked is emitted when someone likes a user's timeline post
	EventPostLiked EventType = "post.liked"
)

// Event is one deliverable notification. Events are fire-and-forget: they
// are never persisted and exist only while a live stream can receive them.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	RecipientUserID int64     `json:"recipientUserId"`
	ActorName       string    `json:"actorName"`
	ActorPhotoURL   string    `json:"actorPhotoUrl,omitempty"`
	Message         string    `json:"message"`
	PostID          int64     `json:"postId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewEvent creates an event with a fresh unique id and creation timestamp.
// The caller fills in the remaining display fields.
func NewEvent(eventType EventType, recipientUserID int64) *Event {
	return &Event{
		ID:              uuid.New().String(),
		Type:            eventType,
		RecipientUserID: recipientUserID,
		CreatedAt:       time.Now().UTC(),
	}
}

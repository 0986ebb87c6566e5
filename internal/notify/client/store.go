// Package client provides the embeddable notification client: a reconnecting
// stream subscriber, a bounded read/unread store and a desktop alert
// capability.
package client

import (
	"sync"
	"time"

	"github.com/habitflow/habitflow/internal/notify"
)

// Notification is a received event plus local read state. ReadAt stays zero
// until the user acknowledges the notification; it never travels the wire.
type Notification struct {
	notify.Event
	ReadAt time.Time `json:"readAt,omitempty"`
}

// Read reports whether the notification has been acknowledged
func (n *Notification) Read() bool {
	return !n.ReadAt.IsZero()
}

// Store is a bounded, newest-first cache of recent notifications. A single
// subscriber writes; any number of UI observers read concurrently.
type Store struct {
	mu       sync.RWMutex
	capacity int
	entries  []Notification
	unread   int

	listeners []func()
	now       func() time.Time
}

// NewStore creates a store holding at most capacity entries
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 50
	}
	return &Store{
		capacity: capacity,
		now:      time.Now,
	}
}

// OnChange registers a callback invoked after every mutation. Callbacks run
// outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Add prepends an unread notification, evicting the oldest entry beyond
// capacity.
func (s *Store) Add(event *notify.Event) {
	s.mu.Lock()
	s.entries = append([]Notification{{Event: *event}}, s.entries...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
	s.recountUnread()
	s.mu.Unlock()
	s.notifyChanged()
}

// MarkRead acknowledges the notification with the given id. Unknown or
// already-read ids are a no-op.
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	changed := false
	for i := range s.entries {
		if s.entries[i].ID == id && !s.entries[i].Read() {
			s.entries[i].ReadAt = s.now()
			changed = true
			break
		}
	}
	if changed {
		s.recountUnread()
	}
	s.mu.Unlock()
	if changed {
		s.notifyChanged()
	}
}

// MarkAllRead acknowledges every unread notification
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	changed := false
	for i := range s.entries {
		if !s.entries[i].Read() {
			s.entries[i].ReadAt = s.now()
			changed = true
		}
	}
	if changed {
		s.recountUnread()
	}
	s.mu.Unlock()
	if changed {
		s.notifyChanged()
	}
}

// Recent returns a copy of the notifications, newest first
func (s *Store) Recent() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, len(s.entries))
	copy(out, s.entries)
	return out
}

// UnreadCount returns the number of unacknowledged notifications
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of held notifications
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// recountUnread re-derives the unread counter from the entries. Called with
// the write lock held after every mutation, which keeps the counter equal to
// the number of entries without a ReadAt by construction.
func (s *Store) recountUnread() {
	n := 0
	for i := range s.entries {
		if !s.entries[i].Read() {
			n++
		}
	}
	s.unread = n
}

func (s *Store) notifyChanged() {
	s.mu.RLock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

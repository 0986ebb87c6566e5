package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitflow/habitflow/internal/notify"
)

func testEvent(id string) *notify.Event {
	e := notify.NewEvent(notify.EventPostLiked, 42)
	e.ID = id
	e.Message = "someone liked your post"
	return e
}

func TestStoreAddIncrementsUnread(t *testing.T) {
	store := NewStore(10)

	store.Add(testEvent("a"))
	assert.Equal(t, 1, store.UnreadCount())

	store.Add(testEvent("b"))
	assert.Equal(t, 2, store.UnreadCount())
}

func TestStoreNewestFirst(t *testing.T) {
	store := NewStore(10)

	store.Add(testEvent("a"))
	store.Add(testEvent("b"))
	store.Add(testEvent("c"))

	recent := store.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "a", recent[2].ID)
}

func TestStoreCapacityEvictsOldest(t *testing.T) {
	store := NewStore(3)

	for i := 0; i < 4; i++ {
		store.Add(testEvent(fmt.Sprintf("e%d", i)))
	}

	recent := store.Recent()
	require.Len(t, recent, 3)
	for _, n := range recent {
		assert.NotEqual(t, "e0", n.ID, "oldest entry must be evicted")
	}
	assert.Equal(t, 3, store.UnreadCount())
}

func TestStoreMarkRead(t *testing.T) {
	store := NewStore(10)
	store.Add(testEvent("a"))
	store.Add(testEvent("b"))

	store.MarkRead("a")
	assert.Equal(t, 1, store.UnreadCount())

	// Idempotent on already-read and unknown ids
	store.MarkRead("a")
	assert.Equal(t, 1, store.UnreadCount())
	store.MarkRead("nope")
	assert.Equal(t, 1, store.UnreadCount())

	for _, n := range store.Recent() {
		if n.ID == "a" {
			assert.True(t, n.Read())
		} else {
			assert.False(t, n.Read())
		}
	}
}

func TestStoreMarkAllRead(t *testing.T) {
	store := NewStore(10)
	for i := 0; i < 5; i++ {
		store.Add(testEvent(fmt.Sprintf("e%d", i)))
	}
	store.MarkRead("e2")

	store.MarkAllRead()
	assert.Equal(t, 0, store.UnreadCount())
	for _, n := range store.Recent() {
		assert.True(t, n.Read())
	}
}

func TestStoreUnreadInvariantHolds(t *testing.T) {
	store := NewStore(4)

	check := func() {
		unread := 0
		for _, n := range store.Recent() {
			if !n.Read() {
				unread++
			}
		}
		assert.Equal(t, unread, store.UnreadCount())
	}

	for i := 0; i < 8; i++ {
		store.Add(testEvent(fmt.Sprintf("e%d", i)))
		check()
	}
	store.MarkRead("e6")
	check()
	store.MarkAllRead()
	check()
	store.Add(testEvent("late"))
	check()
}

func TestStoreOnChangeFires(t *testing.T) {
	store := NewStore(10)

	changes := 0
	store.OnChange(func() { changes++ })

	store.Add(testEvent("a"))
	store.MarkRead("a")
	store.MarkRead("a") // no-op, no callback
	store.MarkAllRead() // nothing unread, no callback

	assert.Equal(t, 2, changes)
}

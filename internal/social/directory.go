package social

import (
	"context"
	"fmt"
	"sync"
)

// StaticDirectory is an in-memory Directory used in development and tests.
// Production deployments inject a Directory backed by the habit
// application's database.
type StaticDirectory struct {
	mu          sync.RWMutex
	postAuthors map[int64]int64
	profiles    map[int64]Profile
}

// NewStaticDirectory creates an empty directory
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		postAuthors: make(map[int64]int64),
		profiles:    make(map[int64]Profile),
	}
}

// AddPost records a post's author
func (d *StaticDirectory) AddPost(postID, authorID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postAuthors[postID] = authorID
}

// AddUser records a user's display profile
func (d *StaticDirectory) AddUser(userID int64, profile Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[userID] = profile
}

func (d *StaticDirectory) PostAuthor(_ context.Context, postID int64) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	author, ok := d.postAuthors[postID]
	if !ok {
		return 0, fmt.Errorf("post %d not found", postID)
	}
	return author, nil
}

func (d *StaticDirectory) UserProfile(_ context.Context, userID int64) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("user %d not found", userID)
	}
	return profile, nil
}

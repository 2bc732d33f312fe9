// Package users is the read-side interface to the external user store. The
// core only needs to resolve waiting users into player records and to push
// best-streak updates back; everything else about accounts lives elsewhere.
package users

import (
	"context"
	"errors"
	"sync"

	"github.com/siddkalani/decaychess/internal/session"
)

var ErrUnknownUser = errors.New("users: unknown user")

// User is the durable record slice the core consumes.
type User struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	Rating             int    `json:"rating"`
	Avatar             string `json:"avatar,omitempty"`
	Title              string `json:"title,omitempty"`
	PersonalBestStreak int    `json:"personalBestStreak,omitempty"`
}

// Player converts the record into the session-embedded snapshot.
func (u User) Player() session.Player {
	return session.Player{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		Rating:      u.Rating,
		Avatar:      u.Avatar,
		Title:       u.Title,
	}
}

// Directory resolves users by id.
type Directory interface {
	Get(ctx context.Context, id string) (User, error)
	// RecordStreak raises the user's personal best streak if the given
	// streak exceeds it.
	RecordStreak(ctx context.Context, id string, streak int) error
}

// InMemory is a Directory for tests and local runs.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemory(seed ...User) *InMemory {
	d := &InMemory{users: map[string]User{}}
	for _, u := range seed {
		d.users[u.ID] = u
	}
	return d
}

func (d *InMemory) Get(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

func (d *InMemory) RecordStreak(_ context.Context, id string, streak int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return ErrUnknownUser
	}
	if streak > u.PersonalBestStreak {
		u.PersonalBestStreak = streak
		d.users[id] = u
	}
	return nil
}

var _ Directory = (*InMemory)(nil)

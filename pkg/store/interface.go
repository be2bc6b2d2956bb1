package store

import (
	"errors"

	"github.com/NicolasHaas/gohall/pkg/model"
)

var (
	ErrUserExists   = errors.New("store: user already exists")
	ErrUserNotFound = errors.New("store: user not found")
	ErrBadPassword  = errors.New("store: invalid password")
)

// UserStore defines the persistence interface for player records.
// Implementations include the default SQLite store, a Redis store and an
// in-memory store for tests. Each call is treated as atomic by the server.
type UserStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// CreateUser registers a new user. Returns ErrUserExists if the name is taken.
	CreateUser(username, password string) error

	// Authenticate checks credentials. Returns ErrUserNotFound or ErrBadPassword on failure.
	Authenticate(username, password string) error

	// AddOnlineTime adds elapsed seconds to the user's cumulative online time.
	AddOnlineTime(username string, seconds int64) error

	// OnlineTime returns the user's cumulative online time in seconds.
	OnlineTime(username string) (int64, error)

	// ListUsers returns all users ordered by username.
	ListUsers() ([]model.User, error)
}

// Compile-time checks.
var (
	_ UserStore = (*Store)(nil)
	_ UserStore = (*MemoryStore)(nil)
	_ UserStore = (*RedisStore)(nil)
)

package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/gohall/pkg/model"
)

// MemoryStore provides an in-memory UserStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	users map[string]*model.User
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:   now,
		users: make(map[string]*model.User),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser registers a new user.
func (s *MemoryStore) CreateUser(username, password string) error {
	hash, err := hashNewUser(username, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = &model.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	return nil
}

// Authenticate checks a username/password pair.
func (s *MemoryStore) Authenticate(username, password string) error {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return ErrUserNotFound
	}
	return checkPassword(password, user.PasswordHash)
}

// AddOnlineTime adds seconds to a user's cumulative online time.
func (s *MemoryStore) AddOnlineTime(username string, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("store: add online time: negative duration %d", seconds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	user.OnlineTime += seconds
	return nil
}

// OnlineTime returns the cumulative online seconds of a user.
func (s *MemoryStore) OnlineTime(username string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return 0, ErrUserNotFound
	}
	return user.OnlineTime, nil
}

// ListUsers returns copies of all users ordered by username.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

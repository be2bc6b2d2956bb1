package store

import (
	"fmt"
	"strings"

	"github.com/NicolasHaas/gohall/pkg/crypto"
	"github.com/NicolasHaas/gohall/pkg/model"
)

// MemoryLocation selects the in-memory store in Open.
const MemoryLocation = ":memory:"

// Open picks a backend from a store location: a redis:// or rediss:// URL,
// MemoryLocation, or otherwise a SQLite database path.
func Open(location string) (UserStore, error) {
	switch {
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return NewRedis(location)
	case location == MemoryLocation:
		return NewMemory(), nil
	default:
		return New(location)
	}
}

// hashNewUser validates the username and hashes the password for a new record.
func hashNewUser(username, password string) (string, error) {
	if err := model.ValidateUsername(username); err != nil {
		return "", fmt.Errorf("store: create user: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("store: create user: empty password")
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("store: create user: %w", err)
	}
	return hash, nil
}

func checkPassword(password, hash string) error {
	ok, err := crypto.VerifyPassword(password, hash)
	if err != nil {
		return fmt.Errorf("store: authenticate: %w", err)
	}
	if !ok {
		return ErrBadPassword
	}
	return nil
}

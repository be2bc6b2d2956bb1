// Package crypto provides password hashing for stored user records.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16
	keySize  = 32
	scheme   = "argon2id"
)

var ErrMalformedHash = errors.New("crypto: malformed password hash")

// GenerateSalt returns a random salt for password hashing.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey hashes a password using Argon2id.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, keySize)
}

// HashPassword hashes a password with a fresh salt.
// Format: argon2id$<salt hex>$<key hex>
func HashPassword(password string) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	return encode(salt, deriveKey(password, salt)), nil
}

// VerifyPassword reports whether password matches an encoded hash produced by HashPassword.
func VerifyPassword(password, encoded string) (bool, error) {
	salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := deriveKey(password, salt)
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

func encode(salt, key []byte) string {
	return scheme + "$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(key)
}

func decode(encoded string) (salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != scheme {
		return nil, nil, ErrMalformedHash
	}
	if salt, err = hex.DecodeString(parts[1]); err != nil || len(salt) != saltSize {
		return nil, nil, ErrMalformedHash
	}
	if key, err = hex.DecodeString(parts[2]); err != nil || len(key) != keySize {
		return nil, nil, ErrMalformedHash
	}
	return salt, key, nil
}

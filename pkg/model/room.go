package model

import (
	"errors"
	"fmt"
)

const MaxRoomNameLength = 32

var ErrRoomNameEmpty = errors.New("room name must not be empty")
var ErrRoomNameTooLong = fmt.Errorf("room name must not exceed %d characters", MaxRoomNameLength)
var ErrRoomNameInvalidChars = errors.New("room name must contain only alphanumeric characters, underscores, or hyphens")

// ValidateRoomName applies the same character rules as usernames.
func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if !isNameChars(name) {
		return ErrRoomNameInvalidChars
	}
	return nil
}

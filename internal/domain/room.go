package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type (
	// RoomID is an opaque caller-supplied room identifier.
	RoomID string
	// ConnID identifies one live connection.
	ConnID string
)

// ParseRoomID trims and validates a caller-supplied identifier.
func ParseRoomID(raw string) (RoomID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrRoomIDEmpty
	}
	if len(s) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(s), nil
}

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

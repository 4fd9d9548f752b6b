// Package ident generates the identifiers used across the protocol: full
// UUIDv4 strings for users and short hex ids for rooms and strokes.
package ident

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// UUID returns a random RFC 4122 version 4 UUID string.
func UUID() string {
	return uuid.NewString()
}

// Short returns an 8-character hex id for uses where a full UUID is
// unnecessary, such as room and stroke ids.
func Short() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// RoomID returns a user-friendly room id of the form "room-xxxxxxxx".
func RoomID() string {
	return "room-" + Short()
}

// UserID returns a server-assigned user id of the form "user-<uuid>".
func UserID() string {
	return "user-" + UUID()
}

// StrokeID returns a stroke id of the form "stroke-xxxxxxxx".
func StrokeID() string {
	return "stroke-" + Short()
}

// IsUUID reports whether s is a well-formed version 4 UUID.
func IsUUID(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4
}

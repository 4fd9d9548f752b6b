package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDShape(t *testing.T) {
	id := UUID()
	assert.Len(t, id, 36)
	assert.True(t, IsUUID(id))
}

func TestShortShape(t *testing.T) {
	id := Short()
	assert.Len(t, id, 8)
	for _, c := range id {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestPrefixedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(RoomID(), "room-"))
	assert.True(t, strings.HasPrefix(UserID(), "user-"))
	assert.True(t, strings.HasPrefix(StrokeID(), "stroke-"))

	assert.True(t, IsUUID(strings.TrimPrefix(UserID(), "user-")))
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Short()
		assert.False(t, seen[id], "collision at iteration %d", i)
		seen[id] = true
	}
}

func TestIsUUIDRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"not-a-uuid",
		"user-550e8400-e29b-41d4-a716-446655440000",
		"550e8400e29b41d4a716446655440000zzzz",
	}
	for _, s := range tests {
		assert.False(t, IsUUID(s), s)
	}
}

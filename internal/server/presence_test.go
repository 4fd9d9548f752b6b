package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabboard/server/internal/board"
)

func TestPresenceMuteEscalation(t *testing.T) {
	p := NewPresence(RateLimitConfig{
		Rate:         20,
		Burst:        5,
		MuteAfter:    3,
		MuteDuration: 10 * time.Second,
	}, 3*time.Second)

	room := board.NewRoom("room-1", "")
	require.NoError(t, room.AddParticipant(board.NewUserInfo("user-1", "u", "#FF5733", nil)))

	rejected := 0
	for i := 0; i < 10; i++ {
		if err := p.CursorMove(room, "user-1", float32(i), 0); err != nil {
			rejected++
		}
	}
	assert.Equal(t, 5, rejected)
	assert.True(t, p.Muted("user-1"), "three consecutive rejections escalate to a mute")

	p.RemoveUser("user-1")
	assert.False(t, p.Muted("user-1"))
}

func TestPresenceCursorForUnknownUser(t *testing.T) {
	p := NewPresence(NewConfig().Cursor, 3*time.Second)
	room := board.NewRoom("room-1", "")

	err := p.CursorMove(room, "user-ghost", 1, 2)
	assert.Error(t, err)
}

func TestPresenceSweepMarksGhosts(t *testing.T) {
	p := NewPresence(NewConfig().Cursor, time.Millisecond)
	room := board.NewRoom("room-1", "")
	require.NoError(t, room.AddParticipant(board.NewUserInfo("user-1", "u", "#FF5733", nil)))

	time.Sleep(3 * time.Millisecond)
	assert.Equal(t, []string{"user-1"}, p.GhostUsers(room))
	p.Sweep([]*board.Room{room})

	u, ok := room.Member("user-1")
	require.True(t, ok)
	assert.False(t, u.Active, "idle members are marked inactive, not removed")
}

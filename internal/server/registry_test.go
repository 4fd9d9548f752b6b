package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabboard/server/internal/board"
	"github.com/collabboard/server/internal/protocol"
)

func newCompleteStroke(t *testing.T, userID, strokeID string) *board.Stroke {
	t.Helper()
	s := board.NewStroke(strokeID, userID, "#000000", 2)
	s.AddPoints([]protocol.Point{{X: 1, Y: 1}})
	s.Finish()
	return s
}

// fakePeer stands in for a live session in dispatcher and registry tests.
type fakePeer struct {
	mu     sync.Mutex
	frames [][]byte
	roomID string
	userID string
	color  string
	dead   bool
}

func (p *fakePeer) TrySend(msg []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return false
	}
	p.frames = append(p.frames, msg)
	return true
}

func (p *fakePeer) Identity() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID, p.userID
}

func (p *fakePeer) bind(roomID, userID, color string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roomID = roomID
	p.userID = userID
	p.color = color
}

type frame struct {
	Type string
	Seq  uint64
	Data map[string]any
}

func (p *fakePeer) decoded(t *testing.T) []frame {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]frame, 0, len(p.frames))
	for _, raw := range p.frames {
		var f struct {
			Type string         `json:"type"`
			Seq  uint64         `json:"seq"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, frame{Type: f.Type, Seq: f.Seq, Data: f.Data})
	}
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func TestJoinSendsWelcomeThenSnapshot(t *testing.T) {
	reg := NewRegistry(time.Minute)
	peer := &fakePeer{}

	userID, color, err := reg.Join("room-1", "Alice", "", peer)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(userID, "user-"))
	assert.Equal(t, protocol.Palette[0], color)

	frames := peer.decoded(t)
	require.Len(t, frames, 2)

	assert.Equal(t, "welcome", frames[0].Type)
	assert.Equal(t, userID, frames[0].Data["userId"])
	assert.Equal(t, color, frames[0].Data["color"])
	assert.Empty(t, frames[0].Data["users"], "first joiner sees no peers")

	assert.Equal(t, "room_state", frames[1].Type)
	assert.Empty(t, frames[1].Data["strokes"])
}

func TestSecondJoinerSeesFirstAndTriggersUserJoined(t *testing.T) {
	reg := NewRegistry(time.Minute)
	alice := &fakePeer{}
	bob := &fakePeer{}

	aliceID, aliceColor, err := reg.Join("room-1", "Alice", "", alice)
	require.NoError(t, err)
	alice.reset()

	bobID, bobColor, err := reg.Join("room-1", "Bob", "", bob)
	require.NoError(t, err)
	assert.NotEqual(t, aliceID, bobID)
	assert.NotEqual(t, aliceColor, bobColor)

	bobFrames := bob.decoded(t)
	require.Len(t, bobFrames, 2)
	users := bobFrames[0].Data["users"].([]any)
	require.Len(t, users, 1, "welcome lists existing peers, not the joiner")
	entry := users[0].(map[string]any)
	assert.Equal(t, aliceID, entry["userId"])
	assert.Equal(t, "Alice", entry["name"])

	aliceFrames := alice.decoded(t)
	require.Len(t, aliceFrames, 1)
	assert.Equal(t, "user_joined", aliceFrames[0].Type)
	assert.Equal(t, bobID, aliceFrames[0].Data["userId"])
	assert.Equal(t, "Bob", aliceFrames[0].Data["name"])
	assert.Equal(t, bobColor, aliceFrames[0].Data["color"])
}

func TestColorAssignmentCycles(t *testing.T) {
	reg := NewRegistry(time.Minute)

	var colors []string
	for i := 0; i < len(protocol.Palette)+2; i++ {
		// Separate rooms so capacity never interferes.
		_, color, err := reg.Join(fmt.Sprintf("room-%d", i), "u", "", &fakePeer{})
		require.NoError(t, err)
		colors = append(colors, color)
	}

	for i, c := range colors {
		assert.Equal(t, protocol.Palette[i%len(protocol.Palette)], c, "join %d", i)
	}
}

func TestJoinPasswordGate(t *testing.T) {
	reg := NewRegistry(time.Minute)

	_, _, err := reg.Join("room-1", "Alice", "secret", &fakePeer{})
	require.NoError(t, err)

	_, _, err = reg.Join("room-1", "Eve", "", &fakePeer{})
	assert.ErrorIs(t, err, protocol.ErrInvalidPassword)

	_, _, err = reg.Join("room-1", "Eve", "wrong", &fakePeer{})
	assert.ErrorIs(t, err, protocol.ErrInvalidPassword)

	// The creation-time password stays authoritative; a joiner's value is
	// checked, never installed.
	_, _, err = reg.Join("room-1", "Bob", "secret", &fakePeer{})
	require.NoError(t, err)

	room, ok := reg.Get("room-1")
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount())
}

func TestJoinRoomFull(t *testing.T) {
	reg := NewRegistry(time.Minute)

	for i := 0; i < protocol.MaxUsersPerRoom; i++ {
		_, _, err := reg.Join("room-1", fmt.Sprintf("u%d", i), "", &fakePeer{})
		require.NoError(t, err)
	}

	_, _, err := reg.Join("room-1", "overflow", "", &fakePeer{})
	assert.ErrorIs(t, err, protocol.ErrRoomFull)
}

func TestLeaveBroadcastsUserLeft(t *testing.T) {
	reg := NewRegistry(time.Minute)
	alice := &fakePeer{}
	bob := &fakePeer{}

	aliceID, _, err := reg.Join("room-1", "Alice", "", alice)
	require.NoError(t, err)
	_, _, err = reg.Join("room-1", "Bob", "", bob)
	require.NoError(t, err)
	bob.reset()

	reg.Leave("room-1", aliceID)

	frames := bob.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "user_left", frames[0].Type)
	assert.Equal(t, aliceID, frames[0].Data["userId"])

	// Idempotent for unknown users and rooms.
	reg.Leave("room-1", aliceID)
	reg.Leave("room-nope", aliceID)
}

func TestEmptyRoomDeletedAfterGrace(t *testing.T) {
	reg := NewRegistry(20 * time.Millisecond)
	peer := &fakePeer{}

	userID, _, err := reg.Join("room-1", "Alice", "", peer)
	require.NoError(t, err)
	reg.Leave("room-1", userID)

	_, ok := reg.Get("room-1")
	assert.True(t, ok, "room survives the grace window")

	assert.Eventually(t, func() bool {
		_, ok := reg.Get("room-1")
		return !ok
	}, time.Second, 5*time.Millisecond, "room should be deleted after the grace period")
}

func TestFailedJoinDoesNotDisarmGraceDeletion(t *testing.T) {
	reg := NewRegistry(30 * time.Millisecond)

	userID, _, err := reg.Join("room-1", "Alice", "secret", &fakePeer{})
	require.NoError(t, err)
	reg.Leave("room-1", userID)

	// The rejected join cancels the pending timer in GetOrCreate; the
	// room must go back on the clock, not live forever.
	_, _, err = reg.Join("room-1", "Eve", "wrong", &fakePeer{})
	require.ErrorIs(t, err, protocol.ErrInvalidPassword)

	assert.Eventually(t, func() bool {
		return reg.RoomCount() == 0
	}, time.Second, 5*time.Millisecond, "empty room must still be deleted after a failed join")
}

func TestFailedJoinOnFullRoomKeepsRoom(t *testing.T) {
	reg := NewRegistry(30 * time.Millisecond)

	for i := 0; i < protocol.MaxUsersPerRoom; i++ {
		_, _, err := reg.Join("room-1", fmt.Sprintf("u%d", i), "", &fakePeer{})
		require.NoError(t, err)
	}
	_, _, err := reg.Join("room-1", "overflow", "", &fakePeer{})
	require.ErrorIs(t, err, protocol.ErrRoomFull)

	// An occupied room never gets a deletion timer from a failed join.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, reg.RoomCount())
}

func TestGraceTimerSparesOccupiedRoom(t *testing.T) {
	reg := NewRegistry(20 * time.Millisecond)

	userID, _, err := reg.Join("room-1", "Alice", "", &fakePeer{})
	require.NoError(t, err)

	// A leave racing with a join can arm the timer after the joiner is
	// already installed; the expired callback must notice the member.
	reg.scheduleDeletion("room-1")

	time.Sleep(100 * time.Millisecond)
	_, ok := reg.Get("room-1")
	assert.True(t, ok, "occupied room must survive a stale grace timer")

	// The stale timer entry is cleared, so the next empty cycle re-arms.
	reg.Leave("room-1", userID)
	assert.Eventually(t, func() bool {
		return reg.RoomCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRejoinDuringGraceKeepsRoomState(t *testing.T) {
	reg := NewRegistry(50 * time.Millisecond)
	peer := &fakePeer{}

	userID, _, err := reg.Join("room-1", "Alice", "", peer)
	require.NoError(t, err)

	room, _ := reg.Get("room-1")
	room.AddStroke(newCompleteStroke(t, userID, "stroke-1"))

	reg.Leave("room-1", userID)

	// Rejoin before the grace timer fires.
	rejoiner := &fakePeer{}
	_, _, err = reg.Join("room-1", "Alice", "", rejoiner)
	require.NoError(t, err)

	frames := rejoiner.decoded(t)
	require.Len(t, frames, 2)
	strokes := frames[1].Data["strokes"].([]any)
	require.Len(t, strokes, 1, "prior strokes survive the grace window")

	// And the cancelled timer must not fire later.
	time.Sleep(120 * time.Millisecond)
	_, ok := reg.Get("room-1")
	assert.True(t, ok)
}

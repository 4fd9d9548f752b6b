package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collabboard/server/internal/board"
	"github.com/collabboard/server/internal/ident"
	"github.com/collabboard/server/internal/logging"
	"github.com/collabboard/server/internal/protocol"
)

// Registry owns the room table. Rooms are created on first join and deleted
// a grace period after their last member leaves; a join during the grace
// period cancels the pending deletion. Lock order is always registry before
// room, never the reverse.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*board.Room
	timers map[string]*time.Timer

	colorIdx int
	grace    time.Duration
}

// NewRegistry creates an empty registry with the given deletion grace
// period.
func NewRegistry(grace time.Duration) *Registry {
	return &Registry{
		rooms:  make(map[string]*board.Room),
		timers: make(map[string]*time.Timer),
		grace:  grace,
	}
}

// GetOrCreate returns the room with the given id, creating it with the
// given password if it does not exist. A pending grace deletion is
// cancelled.
func (reg *Registry) GetOrCreate(roomID, password string) *board.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if t, ok := reg.timers[roomID]; ok {
		t.Stop()
		delete(reg.timers, roomID)
	}

	if room, ok := reg.rooms[roomID]; ok {
		return room
	}

	room := board.NewRoom(roomID, password)
	reg.rooms[roomID] = room
	logging.Info("room created", zap.String("room", roomID))
	return room
}

// Get returns the room with the given id.
func (reg *Registry) Get(roomID string) (*board.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// NextColor assigns the next palette color. Assignment cycles through the
// palette process-wide so consecutive joiners are visually distinct.
func (reg *Registry) NextColor() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	color := protocol.Palette[reg.colorIdx%len(protocol.Palette)]
	reg.colorIdx++
	return color
}

// Join admits a connection into a room, creating the room on first join.
// On success the joiner receives welcome and room_state frames, every other
// member receives user_joined, and the assigned user id and color are
// returned. Errors are protocol codes: ErrInvalidPassword, ErrRoomFull.
func (reg *Registry) Join(roomID, userName, password string, handle board.SessionHandle) (string, string, error) {
	room := reg.GetOrCreate(roomID, password)

	// GetOrCreate cancelled any pending deletion; a rejected join must put
	// an empty room back on the clock or it lives forever.
	if !room.ValidatePassword(password) {
		reg.scheduleDeletionIfEmpty(roomID, room)
		return "", "", protocol.ErrInvalidPassword
	}

	userID := ident.UserID()
	color := reg.NextColor()
	if err := room.AddParticipant(board.NewUserInfo(userID, userName, color, handle)); err != nil {
		reg.scheduleDeletionIfEmpty(roomID, room)
		return "", "", err
	}

	// The joiner sees welcome, then the stroke snapshot, then any later
	// traffic. Peers already in the room are listed in the welcome.
	others := room.Members(userID)
	handle.TrySend(protocol.NewWelcome(userID, color, others, room.NextSeq()))
	handle.TrySend(protocol.NewRoomState(room.StrokesSnapshot(protocol.SnapshotStrokeLimit), room.CurrentSeq()))
	room.Broadcast(protocol.NewUserJoined(userID, userName, color, room.NextSeq()), userID)

	logging.Info("user joined",
		zap.String("room", roomID),
		zap.String("user", userID),
		zap.String("name", userName),
		zap.Int("members", room.MemberCount()))
	return userID, color, nil
}

// Leave removes a member from a room, notifies the remaining members, and
// schedules the room for deletion if it is now empty. Leaving an unknown
// room or membership is a no-op.
func (reg *Registry) Leave(roomID, userID string) {
	room, ok := reg.Get(roomID)
	if !ok {
		return
	}

	if _, member := room.Member(userID); !member {
		return
	}
	room.RemoveParticipant(userID)
	room.Broadcast(protocol.NewUserLeft(userID, room.NextSeq()), "")

	logging.Info("user left",
		zap.String("room", roomID),
		zap.String("user", userID),
		zap.Int("members", room.MemberCount()))

	if room.IsEmpty() {
		reg.scheduleDeletion(roomID)
	}
}

// scheduleDeletionIfEmpty re-arms the grace timer when room has no
// members.
func (reg *Registry) scheduleDeletionIfEmpty(roomID string, room *board.Room) {
	if room.IsEmpty() {
		reg.scheduleDeletion(roomID)
	}
}

// scheduleDeletion arms the grace timer for a room believed empty. The
// pending timer entry is the cancellation authority: GetOrCreate removes it
// under the registry lock, so an expired callback that no longer finds
// itself in the table does nothing. The callback also re-checks emptiness —
// a join can slip a member in between the caller's emptiness check and the
// timer being armed — and it never holds the registry lock across the room
// lock.
func (reg *Registry) scheduleDeletion(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if t, ok := reg.timers[roomID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(reg.grace, func() {
		reg.mu.Lock()
		if reg.timers[roomID] != t {
			reg.mu.Unlock()
			return
		}
		room, ok := reg.rooms[roomID]
		reg.mu.Unlock()
		if !ok {
			return
		}

		empty := room.IsEmpty()

		reg.mu.Lock()
		defer reg.mu.Unlock()
		if reg.timers[roomID] != t {
			return
		}
		delete(reg.timers, roomID)
		if !empty {
			// The room was occupied while the timer was armed. Its next
			// Leave will start a fresh countdown.
			return
		}
		delete(reg.rooms, roomID)
		logging.Info("room deleted", zap.String("room", roomID))
	})
	reg.timers[roomID] = t
}

// Rooms returns the current rooms. The slice is a snapshot; rooms may be
// deleted after it is taken.
func (reg *Registry) Rooms() []*board.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]*board.Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room)
	}
	return out
}

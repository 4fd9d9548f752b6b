package board

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/collabboard/server/internal/protocol"
)

// Room is the authoritative state container for one collaboration space.
// A single mutex guards members, cursors, and strokes; the sequence counter
// is atomic so message construction never contends with the lock.
type Room struct {
	id       string
	password string

	mu      sync.Mutex
	members map[string]*UserInfo
	cursors map[string]*CursorState
	strokes []*Stroke

	seq atomic.Uint64

	maxUsers   int
	maxStrokes int
}

// NewRoom creates an empty room. An empty password means the room is open.
func NewRoom(id, password string) *Room {
	return &Room{
		id:         id,
		password:   password,
		members:    make(map[string]*UserInfo),
		cursors:    make(map[string]*CursorState),
		maxUsers:   protocol.MaxUsersPerRoom,
		maxStrokes: protocol.MaxStrokesPerRoom,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// HasPassword reports whether the room is password-gated.
func (r *Room) HasPassword() bool { return r.password != "" }

// ValidatePassword reports whether p grants entry. Open rooms accept any
// password.
func (r *Room) ValidatePassword(p string) bool {
	return r.password == "" || r.password == p
}

// AddParticipant inserts a member and their origin cursor. It returns
// ErrRoomFull at capacity.
func (r *Room) AddParticipant(u *UserInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= r.maxUsers {
		return protocol.ErrRoomFull
	}
	r.members[u.UserID] = u
	r.cursors[u.UserID] = &CursorState{
		UserID:     u.UserID,
		LastUpdate: time.Now(),
		Visible:    true,
	}
	return nil
}

// RemoveParticipant removes a member and their cursor. Removing an unknown
// member is a no-op.
func (r *Room) RemoveParticipant(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, userID)
	delete(r.cursors, userID)
}

// MemberCount returns the number of members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool {
	return r.MemberCount() == 0
}

// IsFull reports whether the room is at capacity.
func (r *Room) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) >= r.maxUsers
}

// Member returns a copy of a member's info.
func (r *Room) Member(userID string) (UserInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.members[userID]
	if !ok {
		return UserInfo{}, false
	}
	return *u, true
}

// Members returns summaries of every member except excludeUserID, which may
// be empty to include everyone.
func (r *Room) Members(excludeUserID string) []protocol.UserSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]protocol.UserSummary, 0, len(r.members))
	for id, u := range r.members {
		if id == excludeUserID {
			continue
		}
		users = append(users, protocol.UserSummary{
			UserID: u.UserID,
			Name:   u.UserName,
			Color:  u.Color,
		})
	}
	return users
}

// TouchMember records activity for a member, reporting whether the member
// exists.
func (r *Room) TouchMember(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.members[userID]
	if !ok {
		return false
	}
	u.Touch()
	return true
}

// GhostMembers returns the ids of members idle longer than timeout.
func (r *Room) GhostMembers(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ghosts []string
	for id, u := range r.members {
		if u.IsGhost(timeout) {
			ghosts = append(ghosts, id)
		}
	}
	return ghosts
}

// MarkGhosts flags members idle longer than timeout as inactive and returns
// how many were flagged.
func (r *Room) MarkGhosts(timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	marked := 0
	for _, u := range r.members {
		if u.Active && u.IsGhost(timeout) {
			u.Active = false
			marked++
		}
	}
	return marked
}

// UpdateCursor overwrites a member's cursor position and touches their
// activity. Unknown members are a no-op.
func (r *Room) UpdateCursor(userID string, x, y float32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cursors[userID]
	if !ok {
		return false
	}
	c.Update(x, y)
	if u, ok := r.members[userID]; ok {
		u.Touch()
	}
	return true
}

// Cursor returns a copy of a member's cursor state.
func (r *Room) Cursor(userID string) (CursorState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cursors[userID]
	if !ok {
		return CursorState{}, false
	}
	return *c, true
}

// AddStroke appends a stroke, evicting the oldest strokes from the front
// when the room exceeds its stroke limit.
func (r *Room) AddStroke(s *Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.strokes = append(r.strokes, s)
	if excess := len(r.strokes) - r.maxStrokes; excess > 0 {
		r.strokes = r.strokes[excess:]
	}
}

// StrokeCount returns the number of strokes held.
func (r *Room) StrokeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.strokes)
}

// Stroke returns a snapshot of the first stroke with the given id.
func (r *Room) Stroke(strokeID string) (protocol.StrokeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findStroke(strokeID)
	if s == nil {
		return protocol.StrokeState{}, false
	}
	return s.State(), true
}

// AppendStrokePoints grows an open stroke owned by userID. It returns
// ErrInvalidStroke for an unknown id, wrong owner, or completed stroke, and
// ErrStrokeTooLarge when the result would exceed the point cap.
func (r *Room) AppendStrokePoints(userID, strokeID string, points []protocol.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findStroke(strokeID)
	if s == nil || s.OwnerID != userID || s.Complete {
		return protocol.ErrInvalidStroke
	}
	if s.PointCount()+len(points) > protocol.MaxPointsPerStroke {
		return protocol.ErrStrokeTooLarge
	}
	s.AddPoints(points)
	return nil
}

// CompleteStroke marks a stroke complete. Completing an already complete
// stroke is permitted and has no effect.
func (r *Room) CompleteStroke(userID, strokeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findStroke(strokeID)
	if s == nil || s.OwnerID != userID {
		return protocol.ErrInvalidStroke
	}
	s.Finish()
	return nil
}

// TranslateStroke shifts a completed stroke by (dx, dy). Open strokes
// cannot be moved.
func (r *Room) TranslateStroke(userID, strokeID string, dx, dy float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findStroke(strokeID)
	if s == nil || s.OwnerID != userID || !s.Complete {
		return protocol.ErrInvalidStroke
	}
	s.Translate(dx, dy)
	return nil
}

// StrokesSnapshot returns the last limit strokes in insertion order as wire
// snapshots.
func (r *Room) StrokesSnapshot(limit int) []protocol.StrokeState {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	if limit >= 0 && len(r.strokes) > limit {
		start = len(r.strokes) - limit
	}
	out := make([]protocol.StrokeState, 0, len(r.strokes)-start)
	for _, s := range r.strokes[start:] {
		out = append(out, s.State())
	}
	return out
}

// NextSeq issues the next sequence number. Values start at 1 and are
// strictly increasing for the room's lifetime.
func (r *Room) NextSeq() uint64 {
	return r.seq.Add(1)
}

// CurrentSeq returns the most recently issued sequence number.
func (r *Room) CurrentSeq() uint64 {
	return r.seq.Load()
}

// Broadcast enqueues msg to every member except excludeUserID. Dead or
// saturated session handles are skipped. It returns the number of members
// the message was delivered to.
func (r *Room) Broadcast(msg []byte, excludeUserID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for id, u := range r.members {
		if id == excludeUserID || u.Session == nil {
			continue
		}
		if u.Session.TrySend(msg) {
			delivered++
		}
	}
	return delivered
}

// SendTo enqueues msg to a single member, reporting whether it was
// delivered.
func (r *Room) SendTo(userID string, msg []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.members[userID]
	if !ok || u.Session == nil {
		return false
	}
	return u.Session.TrySend(msg)
}

// findStroke must be called with the mutex held. Strokes are scanned from
// the front; a few thousand entries at most, so no index is kept.
func (r *Room) findStroke(strokeID string) *Stroke {
	for _, s := range r.strokes {
		if s.ID == strokeID {
			return s
		}
	}
	return nil
}

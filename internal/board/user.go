package board

import "time"

// SessionHandle is a non-owning reference to a user's connection. TrySend
// must never block: it reports false when the connection is gone or its
// queue is saturated, and broadcasts treat that as a silent skip.
type SessionHandle interface {
	TrySend(msg []byte) bool
}

// UserInfo is a room member's identity and activity state. Fields are
// guarded by the owning room's lock.
type UserInfo struct {
	UserID       string
	UserName     string
	Color        string
	Session      SessionHandle
	LastActivity time.Time
	Active       bool
}

// NewUserInfo returns an active member stamped with the current time.
func NewUserInfo(userID, userName, color string, session SessionHandle) *UserInfo {
	return &UserInfo{
		UserID:       userID,
		UserName:     userName,
		Color:        color,
		Session:      session,
		LastActivity: time.Now(),
		Active:       true,
	}
}

// Touch records activity, reviving a ghost.
func (u *UserInfo) Touch() {
	u.LastActivity = time.Now()
	u.Active = true
}

// IsGhost reports whether the member has been idle longer than timeout.
func (u *UserInfo) IsGhost(timeout time.Duration) bool {
	return time.Since(u.LastActivity) > timeout
}

// IdleTime returns how long the member has been inactive.
func (u *UserInfo) IdleTime() time.Duration {
	return time.Since(u.LastActivity)
}

// CursorState is the latest known cursor position for one member. At most
// one exists per member; updates overwrite, there is no history.
type CursorState struct {
	UserID     string
	X          float32
	Y          float32
	LastUpdate time.Time
	Visible    bool
}

// Update overwrites the position and marks the cursor visible.
func (c *CursorState) Update(x, y float32) {
	c.X = x
	c.Y = y
	c.LastUpdate = time.Now()
	c.Visible = true
}

// IsStale reports whether the cursor has not moved within timeout.
func (c *CursorState) IsStale(timeout time.Duration) bool {
	return time.Since(c.LastUpdate) > timeout
}

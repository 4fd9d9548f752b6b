package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/collabboard/server/internal/board"
	"github.com/collabboard/server/internal/limiter"
	"github.com/collabboard/server/internal/logging"
	"github.com/collabboard/server/internal/protocol"
)

// Presence handles cursor fan-out and activity tracking. Cursor updates
// are throttled per user; a user who keeps sending after repeated
// rejections is muted for a fixed window.
type Presence struct {
	limiter      *limiter.Muting
	ghostTimeout time.Duration
}

// NewPresence creates a presence service with per-user cursor throttling
// from cfg.
func NewPresence(cfg RateLimitConfig, ghostTimeout time.Duration) *Presence {
	return &Presence{
		limiter:      limiter.NewMuting(cfg.Rate, cfg.Burst, cfg.MuteAfter, cfg.MuteDuration),
		ghostTimeout: ghostTimeout,
	}
}

// CursorMove applies a throttled cursor update and fans it out to the other
// members. It returns ErrRateLimited when the update was dropped.
func (p *Presence) CursorMove(room *board.Room, userID string, x, y float32) error {
	if !p.limiter.TryConsume(userID) {
		return protocol.ErrRateLimited
	}
	if !room.UpdateCursor(userID, x, y) {
		return protocol.ErrNotInRoom
	}
	room.Broadcast(protocol.NewCursorMove(userID, x, y, room.NextSeq()), userID)
	return nil
}

// Touch records non-cursor activity for a member.
func (p *Presence) Touch(room *board.Room, userID string) {
	room.TouchMember(userID)
}

// GhostUsers returns the members of room idle past the ghost timeout.
func (p *Presence) GhostUsers(room *board.Room) []string {
	return room.GhostMembers(p.ghostTimeout)
}

// Muted reports whether a user is currently muted for cursor traffic.
func (p *Presence) Muted(userID string) bool {
	return p.limiter.Muted(userID)
}

// RemoveUser drops all throttling state for a disconnected user.
func (p *Presence) RemoveUser(userID string) {
	p.limiter.Remove(userID)
}

// Sweep marks idle members in every room as ghosts and prunes stale
// limiter entries. Called periodically by the server's janitor.
func (p *Presence) Sweep(rooms []*board.Room) {
	marked := 0
	for _, room := range rooms {
		marked += room.MarkGhosts(p.ghostTimeout)
	}
	pruned := p.limiter.Cleanup(10 * time.Minute)
	if marked > 0 || pruned > 0 {
		logging.Debug("presence sweep",
			zap.Int("ghosts", marked),
			zap.Int("prunedLimiters", pruned))
	}
}

package server

import (
	"github.com/collabboard/server/internal/board"
	"github.com/collabboard/server/internal/protocol"
)

// Boards applies drawing operations to room state and fans the results out.
// Starting a stroke always succeeds; mutations of existing strokes are
// checked against ownership and lifecycle under the room lock, and rejected
// mutations produce no broadcast.
type Boards struct {
	snapshotLimit int
}

// NewBoards creates the drawing service.
func NewBoards() *Boards {
	return &Boards{snapshotLimit: protocol.SnapshotStrokeLimit}
}

// StrokeStart opens a new stroke owned by userID and announces it to the
// other members.
func (b *Boards) StrokeStart(room *board.Room, userID string, p *protocol.StrokeStartPayload) {
	s := board.NewStroke(p.StrokeID, userID, p.Color, p.Width)
	s.Seq = room.NextSeq()
	room.AddStroke(s)
	room.Broadcast(protocol.NewStrokeStart(p.StrokeID, userID, p.Color, p.Width, s.Seq), userID)
}

// StrokeAdd appends points to an open stroke owned by userID.
func (b *Boards) StrokeAdd(room *board.Room, userID string, p *protocol.StrokeAddPayload) error {
	if err := room.AppendStrokePoints(userID, p.StrokeID, p.Points); err != nil {
		return err
	}
	room.Broadcast(protocol.NewStrokeAdd(p.StrokeID, userID, p.Points, room.NextSeq()), userID)
	return nil
}

// StrokeEnd completes a stroke owned by userID.
func (b *Boards) StrokeEnd(room *board.Room, userID string, p *protocol.StrokeEndPayload) error {
	if err := room.CompleteStroke(userID, p.StrokeID); err != nil {
		return err
	}
	room.Broadcast(protocol.NewStrokeEnd(p.StrokeID, userID, room.NextSeq()), userID)
	return nil
}

// StrokeMove translates a completed stroke owned by userID.
func (b *Boards) StrokeMove(room *board.Room, userID string, p *protocol.StrokeMovePayload) error {
	if err := room.TranslateStroke(userID, p.StrokeID, p.Dx, p.Dy); err != nil {
		return err
	}
	room.Broadcast(protocol.NewStrokeMove(p.StrokeID, userID, p.Dx, p.Dy, room.NextSeq()), userID)
	return nil
}

// Snapshot builds a room_state frame from the most recent strokes.
func (b *Boards) Snapshot(room *board.Room) []byte {
	return protocol.NewRoomState(room.StrokesSnapshot(b.snapshotLimit), room.CurrentSeq())
}

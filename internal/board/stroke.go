// Package board holds the authoritative whiteboard state for one room:
// participants, cursors, and the ordered stroke history, together with the
// mutation rules the server enforces on them.
package board

import "github.com/collabboard/server/internal/protocol"

// Stroke is an ordered polyline drawn by a single owner. The owner never
// changes; points may only grow while the stroke is open; once complete the
// stroke may only be translated as a whole.
type Stroke struct {
	ID       string
	OwnerID  string
	Points   []protocol.Point
	Color    string
	Width    float32
	Complete bool
	Seq      uint64
}

// NewStroke returns an open stroke with no points.
func NewStroke(id, ownerID, color string, width float32) *Stroke {
	return &Stroke{
		ID:      id,
		OwnerID: ownerID,
		Color:   color,
		Width:   width,
	}
}

// AddPoints appends points to the stroke.
func (s *Stroke) AddPoints(points []protocol.Point) {
	s.Points = append(s.Points, points...)
}

// Finish marks the stroke complete.
func (s *Stroke) Finish() {
	s.Complete = true
}

// Translate shifts every point by (dx, dy).
func (s *Stroke) Translate(dx, dy float32) {
	for i := range s.Points {
		s.Points[i].X += dx
		s.Points[i].Y += dy
	}
}

// PointCount returns the number of points in the stroke.
func (s *Stroke) PointCount() int {
	return len(s.Points)
}

// State returns the wire snapshot form of the stroke. Points are copied so
// the caller can hold the result outside the room lock.
func (s *Stroke) State() protocol.StrokeState {
	points := make([]protocol.Point, len(s.Points))
	copy(points, s.Points)
	return protocol.StrokeState{
		StrokeID: s.ID,
		UserID:   s.OwnerID,
		Points:   points,
		Color:    s.Color,
		Width:    s.Width,
		Complete: s.Complete,
	}
}

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Point is a single stroke coordinate. On the wire a point is a two-element
// array [x, y], not an object.
type Point struct {
	X float32
	Y float32
}

// MarshalJSON encodes the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float32{p.X, p.Y})
}

// UnmarshalJSON decodes a [x, y] array. Arrays with fewer than two elements
// are rejected; extra elements are ignored.
func (p *Point) UnmarshalJSON(b []byte) error {
	var coords []float32
	if err := json.Unmarshal(b, &coords); err != nil {
		return err
	}
	if len(coords) < 2 {
		return fmt.Errorf("point needs 2 coordinates, got %d", len(coords))
	}
	p.X = coords[0]
	p.Y = coords[1]
	return nil
}

// Envelope is the parsed form of one wire frame:
//
//	{"type": "...", "seq": 0, "timestamp": 0, "data": {...}}
//
// Seq and Timestamp default to zero when absent or mistyped; Data defaults
// to nil. Only an invalid JSON document or a non-object root is a parse
// failure.
type Envelope struct {
	Type      string
	Seq       uint64
	Timestamp int64
	Data      json.RawMessage
}

// Parse decodes a raw frame into an Envelope. It returns ErrMalformedMessage
// if the payload is not a JSON object.
func Parse(raw []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrMalformedMessage
	}

	env := &Envelope{}
	if v, ok := fields["type"]; ok {
		_ = json.Unmarshal(v, &env.Type)
	}
	if v, ok := fields["seq"]; ok {
		_ = json.Unmarshal(v, &env.Seq)
	}
	if v, ok := fields["timestamp"]; ok {
		_ = json.Unmarshal(v, &env.Timestamp)
	}
	if v, ok := fields["data"]; ok {
		env.Data = v
	}
	return env, nil
}

// MessageType returns the variant for the envelope's type tag, MsgUnknown if
// the tag is missing or unrecognized.
func (e *Envelope) MessageType() MessageType {
	return ParseMessageType(e.Type)
}

// JoinRoomPayload carries a join_room request.
type JoinRoomPayload struct {
	RoomID   string
	UserName string
	Password string
}

// CursorMovePayload carries a cursor position update.
type CursorMovePayload struct {
	X float32
	Y float32
}

// StrokeStartPayload opens a new stroke.
type StrokeStartPayload struct {
	StrokeID string
	Color    string
	Width    float32
}

// StrokeAddPayload appends points to an open stroke.
type StrokeAddPayload struct {
	StrokeID string
	Points   []Point
}

// StrokeEndPayload completes a stroke.
type StrokeEndPayload struct {
	StrokeID string
}

// StrokeMovePayload translates a completed stroke.
type StrokeMovePayload struct {
	StrokeID string
	Dx       float32
	Dy       float32
}

// decodeData unmarshals the envelope data object into dst, classifying
// type mismatches as ErrInvalidField. Presence of required fields is checked
// by the callers via pointer fields.
func (e *Envelope) decodeData(dst any) error {
	if len(e.Data) == 0 {
		// Leave dst zeroed; required-field checks will report the miss.
		return nil
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return ErrInvalidField
	}
	return nil
}

// JoinRoom validates and extracts a join_room payload. Missing roomId or
// userName yields ErrMissingField; password is optional.
func (e *Envelope) JoinRoom() (*JoinRoomPayload, error) {
	var raw struct {
		RoomID   *string `json:"roomId"`
		UserName *string `json:"userName"`
		Password *string `json:"password"`
	}
	if err := e.decodeData(&raw); err != nil {
		return nil, err
	}
	if raw.RoomID == nil || raw.UserName == nil {
		return nil, ErrMissingField
	}
	p := &JoinRoomPayload{RoomID: *raw.RoomID, UserName: *raw.UserName}
	if raw.Password != nil {
		p.Password = *raw.Password
	}
	return p, nil
}

// CursorMove validates and extracts a cursor_move payload.
func (e *Envelope) CursorMove() (*CursorMovePayload, error) {
	var raw struct {
		X *float32 `json:"x"`
		Y *float32 `json:"y"`
	}
	if err := e.decodeData(&raw); err != nil {
		return nil, err
	}
	if raw.X == nil || raw.Y == nil {
		return nil, ErrMissingField
	}
	return &CursorMovePayload{X: *raw.X, Y: *raw.Y}, nil
}

// StrokeStart validates and extracts a stroke_start payload.
func (e *Envelope) StrokeStart() (*StrokeStartPayload, error) {
	var raw struct {
		StrokeID *string  `json:"strokeId"`
		Color    *string  `json:"color"`
		Width    *float32 `json:"width"`
	}
	if err := e.decodeData(&raw); err != nil {
		return nil, err
	}
	if raw.StrokeID == nil || raw.Color == nil || raw.Width == nil {
		return nil, ErrMissingField
	}
	return &StrokeStartPayload{StrokeID: *raw.StrokeID, Color: *raw.Color, Width: *raw.Width}, nil
}

// StrokeAdd validates and extracts a stroke_add payload.
func (e *Envelope) StrokeAdd() (*StrokeAddPayload, error) {
	var raw struct {
		StrokeID *string  `json:"strokeId"`
		Points   *[]Point `json:"points"`
	}
	if err := e.decodeData(&raw); err != nil {
		return nil, err
	}
	if raw.StrokeID == nil || raw.Points == nil {
		return nil, ErrMissingField
	}
	return &StrokeAddPayload{StrokeID: *raw.StrokeID, Points: *raw.Points}, nil
}

// StrokeEnd validates and extracts a stroke_end payload.
func (e *Envelope) StrokeEnd() (*StrokeEndPayload, error) {
	var raw struct {
		StrokeID *string `json:"strokeId"`
	}
	if err := e.decodeData(&raw); err != nil {
		return nil, err
	}
	if raw.StrokeID == nil {
		return nil, ErrMissingField
	}
	return &StrokeEndPayload{StrokeID: *raw.StrokeID}, nil
}

// StrokeMove validates and extracts a stroke_move payload.
func (e *Envelope) StrokeMove() (*StrokeMovePayload, error) {
	var raw struct {
		StrokeID *string  `json:"strokeId"`
		Dx       *float32 `json:"dx"`
		Dy       *float32 `json:"dy"`
	}
	if err := e.decodeData(&raw); err != nil {
		return nil, err
	}
	if raw.StrokeID == nil || raw.Dx == nil || raw.Dy == nil {
		return nil, ErrMissingField
	}
	return &StrokeMovePayload{StrokeID: *raw.StrokeID, Dx: *raw.Dx, Dy: *raw.Dy}, nil
}

// UserSummary describes one room member in welcome and user_joined frames.
type UserSummary struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// StrokeState is the snapshot form of a stroke in room_state frames.
type StrokeState struct {
	StrokeID string  `json:"strokeId"`
	UserID   string  `json:"userId"`
	Points   []Point `json:"points"`
	Color    string  `json:"color"`
	Width    float32 `json:"width"`
	Complete bool    `json:"complete"`
}

type outboundEnvelope struct {
	Type      string `json:"type"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// nowMillis is swapped out by tests that need stable timestamps.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

func encode(t MessageType, seq uint64, data any) []byte {
	b, _ := json.Marshal(outboundEnvelope{
		Type:      t.String(),
		Seq:       seq,
		Timestamp: nowMillis(),
		Data:      data,
	})
	return b
}

// NewWelcome builds the welcome frame sent to a joiner. The users list
// excludes the joiner.
func NewWelcome(userID, color string, users []UserSummary, seq uint64) []byte {
	if users == nil {
		users = []UserSummary{}
	}
	return encode(MsgWelcome, seq, map[string]any{
		"userId": userID,
		"color":  color,
		"users":  users,
	})
}

// NewUserJoined builds the user_joined broadcast.
func NewUserJoined(userID, name, color string, seq uint64) []byte {
	return encode(MsgUserJoined, seq, map[string]any{
		"userId": userID,
		"name":   name,
		"color":  color,
	})
}

// NewUserLeft builds the user_left broadcast.
func NewUserLeft(userID string, seq uint64) []byte {
	return encode(MsgUserLeft, seq, map[string]any{"userId": userID})
}

// NewCursorMove builds the cursor_move broadcast with the originating user.
func NewCursorMove(userID string, x, y float32, seq uint64) []byte {
	return encode(MsgCursorMove, seq, map[string]any{
		"userId": userID,
		"x":      x,
		"y":      y,
	})
}

// NewStrokeStart builds the stroke_start broadcast.
func NewStrokeStart(strokeID, userID, color string, width float32, seq uint64) []byte {
	return encode(MsgStrokeStart, seq, map[string]any{
		"strokeId": strokeID,
		"userId":   userID,
		"color":    color,
		"width":    width,
	})
}

// NewStrokeAdd builds the stroke_add broadcast.
func NewStrokeAdd(strokeID, userID string, points []Point, seq uint64) []byte {
	if points == nil {
		points = []Point{}
	}
	return encode(MsgStrokeAdd, seq, map[string]any{
		"strokeId": strokeID,
		"userId":   userID,
		"points":   points,
	})
}

// NewStrokeEnd builds the stroke_end broadcast.
func NewStrokeEnd(strokeID, userID string, seq uint64) []byte {
	return encode(MsgStrokeEnd, seq, map[string]any{
		"strokeId": strokeID,
		"userId":   userID,
	})
}

// NewStrokeMove builds the stroke_move broadcast.
func NewStrokeMove(strokeID, userID string, dx, dy float32, seq uint64) []byte {
	return encode(MsgStrokeMove, seq, map[string]any{
		"strokeId": strokeID,
		"userId":   userID,
		"dx":       dx,
		"dy":       dy,
	})
}

// NewRoomState builds the room_state snapshot sent to a joiner.
func NewRoomState(strokes []StrokeState, snapshotSeq uint64) []byte {
	if strokes == nil {
		strokes = []StrokeState{}
	}
	return encode(MsgRoomState, snapshotSeq, map[string]any{
		"strokes":     strokes,
		"snapshotSeq": snapshotSeq,
	})
}

// NewPong builds a pong frame echoing the client's ping sequence.
func NewPong(seq uint64) []byte {
	return encode(MsgPong, seq, map[string]any{})
}

// NewError builds an error frame with the code's standard message.
func NewError(code ErrorCode, seq uint64) []byte {
	return NewErrorMessage(code, code.Message(), seq)
}

// NewErrorMessage builds an error frame with a custom message.
func NewErrorMessage(code ErrorCode, message string, seq uint64) []byte {
	return encode(MsgError, seq, map[string]any{
		"code":    string(code),
		"message": message,
	})
}

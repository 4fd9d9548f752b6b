package server

import (
	"errors"

	"go.uber.org/zap"

	"github.com/collabboard/server/internal/board"
	"github.com/collabboard/server/internal/logging"
	"github.com/collabboard/server/internal/protocol"
)

// peer is the dispatcher's view of a connection: a send handle plus the
// room binding established by a successful join. Sessions implement it;
// tests substitute recorders.
type peer interface {
	board.SessionHandle
	Identity() (roomID, userID string)
	bind(roomID, userID, color string)
}

// Dispatcher routes parsed frames to the room, presence, and drawing
// services. Error policy: parse and join failures are reported to the
// originator; cursor and stroke failures are dropped silently so a buggy
// or hostile client cannot use the server as an echo amplifier.
type Dispatcher struct {
	registry *Registry
	presence *Presence
	boards   *Boards
}

// NewDispatcher wires a dispatcher to its services.
func NewDispatcher(registry *Registry, presence *Presence, boards *Boards) *Dispatcher {
	return &Dispatcher{registry: registry, presence: presence, boards: boards}
}

// Handle processes one inbound frame from p.
func (d *Dispatcher) Handle(p peer, raw []byte) {
	env, err := protocol.Parse(raw)
	if err != nil {
		p.TrySend(protocol.NewError(protocol.ErrMalformedMessage, 0))
		return
	}

	switch env.MessageType() {
	case protocol.MsgPing:
		// Heartbeats work before a join so the handshake window cannot
		// time out under a slow client.
		p.TrySend(protocol.NewPong(env.Seq))
		return
	case protocol.MsgJoinRoom:
		d.handleJoin(p, env)
		return
	case protocol.MsgCursorMove, protocol.MsgStrokeStart, protocol.MsgStrokeAdd,
		protocol.MsgStrokeEnd, protocol.MsgStrokeMove:
		// Membership-gated, handled below.
	default:
		// Unrecognized tags and server-only tags sent by a client are
		// answered whether or not the connection has joined.
		p.TrySend(protocol.NewError(protocol.ErrInvalidMessageType, env.Seq))
		return
	}

	roomID, userID := p.Identity()
	if userID == "" {
		logging.Debug("dropping frame from unjoined connection",
			zap.String("type", env.Type))
		return
	}
	room, ok := d.registry.Get(roomID)
	if !ok {
		logging.Warn("frame for missing room",
			zap.String("room", roomID), zap.String("user", userID))
		return
	}

	switch env.MessageType() {
	case protocol.MsgCursorMove:
		d.handleCursorMove(room, userID, env)
	case protocol.MsgStrokeStart:
		d.handleStrokeStart(room, userID, env)
	case protocol.MsgStrokeAdd:
		d.handleStrokeAdd(room, userID, env)
	case protocol.MsgStrokeEnd:
		d.handleStrokeEnd(room, userID, env)
	case protocol.MsgStrokeMove:
		d.handleStrokeMove(room, userID, env)
	}
}

func (d *Dispatcher) handleJoin(p peer, env *protocol.Envelope) {
	if _, userID := p.Identity(); userID != "" {
		p.TrySend(protocol.NewError(protocol.ErrAlreadyInRoom, env.Seq))
		return
	}

	payload, err := env.JoinRoom()
	if err != nil {
		p.TrySend(protocol.NewError(asCode(err), env.Seq))
		return
	}

	userID, color, err := d.registry.Join(payload.RoomID, payload.UserName, payload.Password, p)
	if err != nil {
		p.TrySend(protocol.NewError(asCode(err), env.Seq))
		return
	}
	p.bind(payload.RoomID, userID, color)
}

func (d *Dispatcher) handleCursorMove(room *board.Room, userID string, env *protocol.Envelope) {
	payload, err := env.CursorMove()
	if err != nil {
		return
	}
	if err := d.presence.CursorMove(room, userID, payload.X, payload.Y); err != nil {
		logging.Debug("cursor update dropped",
			zap.String("user", userID), zap.Error(err))
	}
}

func (d *Dispatcher) handleStrokeStart(room *board.Room, userID string, env *protocol.Envelope) {
	payload, err := env.StrokeStart()
	if err != nil {
		return
	}
	d.presence.Touch(room, userID)
	d.boards.StrokeStart(room, userID, payload)
}

func (d *Dispatcher) handleStrokeAdd(room *board.Room, userID string, env *protocol.Envelope) {
	payload, err := env.StrokeAdd()
	if err != nil {
		return
	}
	d.presence.Touch(room, userID)
	if err := d.boards.StrokeAdd(room, userID, payload); err != nil {
		logging.Debug("stroke_add rejected",
			zap.String("user", userID),
			zap.String("stroke", payload.StrokeID),
			zap.Error(err))
	}
}

func (d *Dispatcher) handleStrokeEnd(room *board.Room, userID string, env *protocol.Envelope) {
	payload, err := env.StrokeEnd()
	if err != nil {
		return
	}
	d.presence.Touch(room, userID)
	if err := d.boards.StrokeEnd(room, userID, payload); err != nil {
		logging.Debug("stroke_end rejected",
			zap.String("user", userID),
			zap.String("stroke", payload.StrokeID),
			zap.Error(err))
	}
}

func (d *Dispatcher) handleStrokeMove(room *board.Room, userID string, env *protocol.Envelope) {
	payload, err := env.StrokeMove()
	if err != nil {
		return
	}
	d.presence.Touch(room, userID)
	if err := d.boards.StrokeMove(room, userID, payload); err != nil {
		logging.Debug("stroke_move rejected",
			zap.String("user", userID),
			zap.String("stroke", payload.StrokeID),
			zap.Error(err))
	}
}

// asCode maps an error to its protocol code, ErrInternal for anything that
// is not already a code.
func asCode(err error) protocol.ErrorCode {
	var code protocol.ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return protocol.ErrInternal
}

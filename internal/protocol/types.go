// Package protocol defines the wire format shared by the CollabBoard server
// and its clients: the tagged message envelope, message and error taxonomies,
// and the normative protocol constants.
package protocol

// MessageType identifies a protocol message variant.
type MessageType int

const (
	// MsgUnknown marks an unrecognized or missing type tag.
	MsgUnknown MessageType = iota

	// Control messages (reliable, low frequency).
	MsgJoinRoom
	MsgWelcome
	MsgUserJoined
	MsgUserLeft

	// Presence messages (loss-tolerant, high frequency).
	MsgCursorMove

	// Drawing messages (reliable, event-driven).
	MsgStrokeStart
	MsgStrokeAdd
	MsgStrokeEnd
	MsgStrokeMove

	// State messages (reliable, on-demand).
	MsgRoomState

	// Heartbeat messages.
	MsgPing
	MsgPong

	// Error notifications.
	MsgError
)

var messageTypeNames = map[MessageType]string{
	MsgJoinRoom:    "join_room",
	MsgWelcome:     "welcome",
	MsgUserJoined:  "user_joined",
	MsgUserLeft:    "user_left",
	MsgCursorMove:  "cursor_move",
	MsgStrokeStart: "stroke_start",
	MsgStrokeAdd:   "stroke_add",
	MsgStrokeEnd:   "stroke_end",
	MsgStrokeMove:  "stroke_move",
	MsgRoomState:   "room_state",
	MsgPing:        "ping",
	MsgPong:        "pong",
	MsgError:       "error",
}

var messageTypesByName = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageTypeNames))
	for t, name := range messageTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the wire tag for the message type, or "unknown".
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseMessageType maps a wire tag to its MessageType. Unrecognized tags
// yield MsgUnknown.
func ParseMessageType(s string) MessageType {
	if t, ok := messageTypesByName[s]; ok {
		return t
	}
	return MsgUnknown
}

// ErrorCode is a protocol-level error. It implements error so subsystem
// operations can return codes directly; the dispatcher decides whether a
// code is surfaced to the client as an error frame.
type ErrorCode string

const (
	// Room errors.
	ErrRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"
	ErrRoomFull        ErrorCode = "ROOM_FULL"
	ErrInvalidPassword ErrorCode = "INVALID_PASSWORD"

	// Message errors.
	ErrMalformedMessage   ErrorCode = "MALFORMED_MESSAGE"
	ErrInvalidMessageType ErrorCode = "INVALID_MESSAGE_TYPE"
	ErrMissingField       ErrorCode = "MISSING_FIELD"
	ErrInvalidField       ErrorCode = "INVALID_FIELD"

	// Rate limiting.
	ErrRateLimited ErrorCode = "RATE_LIMITED"

	// Drawing errors.
	ErrInvalidStroke  ErrorCode = "INVALID_STROKE"
	ErrStrokeTooLarge ErrorCode = "STROKE_TOO_LARGE"

	// Connection errors.
	ErrNotInRoom     ErrorCode = "NOT_IN_ROOM"
	ErrAlreadyInRoom ErrorCode = "ALREADY_IN_ROOM"

	// Internal errors.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error returns the wire code, satisfying the error interface.
func (e ErrorCode) Error() string { return string(e) }

// Message returns the human-readable description sent in error frames.
func (e ErrorCode) Message() string {
	switch e {
	case ErrRoomNotFound:
		return "The requested room does not exist"
	case ErrRoomFull:
		return "Room has reached maximum capacity (15 users)"
	case ErrInvalidPassword:
		return "Incorrect room password"
	case ErrMalformedMessage:
		return "Message format is invalid"
	case ErrInvalidMessageType:
		return "Unknown message type"
	case ErrMissingField:
		return "Required field is missing"
	case ErrInvalidField:
		return "Field value is invalid"
	case ErrRateLimited:
		return "Too many messages, please slow down"
	case ErrInvalidStroke:
		return "Stroke not found or not owned by you"
	case ErrStrokeTooLarge:
		return "Stroke contains too many points"
	case ErrNotInRoom:
		return "You must join a room first"
	case ErrAlreadyInRoom:
		return "You are already in a room"
	default:
		return "An unexpected error occurred"
	}
}

// Protocol constants. All values are normative.
const (
	// Room limits.
	MaxUsersPerRoom     = 15
	MaxStrokesPerRoom   = 1000
	SnapshotStrokeLimit = 500

	// Message limits.
	MaxMessageSize     = 64 * 1024
	MaxPointsPerStroke = 10000

	// Timing, in milliseconds on the wire.
	HeartbeatIntervalMs     = 10000
	HeartbeatTimeoutMs      = 30000
	GhostCursorTimeoutMs    = 3000
	RateLimitMuteDurationMs = 10000

	// Cursor rate limiting.
	CursorUpdatesPerSecond = 20.0
	RateLimitBurstSize     = 5.0
)

// Palette is the fixed set of colors assigned to joining users, in
// allocation order. Colors cycle; they are never reclaimed on leave.
var Palette = [15]string{
	"#FF5733", "#33FF57", "#3357FF", "#FF33F5", "#F5FF33",
	"#33FFF5", "#FF8C33", "#8C33FF", "#33FF8C", "#FF338C",
	"#338CFF", "#8CFF33", "#FF3333", "#33FF33", "#3333FF",
}

package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabboard/server/internal/logging"
)

const writeWait = 10 * time.Second

// Session owns one WebSocket connection: the read and write pumps, the
// outbound queue, and the room binding once the client has joined. Rooms
// hold sessions only through the SessionHandle interface and never block
// on them.
type Session struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	srv  *Server
	addr string

	mu     sync.Mutex
	roomID string
	userID string
	color  string
	closed bool

	closeOnce sync.Once
}

// NewSession creates a session for an upgraded connection. The outbound
// queue is buffered; a client that cannot drain it gets disconnected
// rather than stalling the room.
func NewSession(conn *websocket.Conn, srv *Server, addr string) *Session {
	if conn != nil {
		conn.SetReadLimit(srv.cfg.MaxMessageSize)
	}
	return &Session{
		conn: conn,
		send: make(chan []byte, srv.cfg.SendQueueDepth),
		done: make(chan struct{}),
		srv:  srv,
		addr: addr,
	}
}

// TrySend queues msg for delivery. It never blocks: a closed session
// reports false, and a saturated queue reports false and tears the
// session down asynchronously.
func (s *Session) TrySend(msg []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.send <- msg:
		return true
	default:
		logging.Warn("send queue full, disconnecting slow client",
			zap.String("addr", s.addr))
		// Close acquires locks the broadcasting room may hold.
		go s.Close()
		return false
	}
}

// Identity returns the room binding, empty strings before a join.
func (s *Session) Identity() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.userID
}

// bind records a successful join.
func (s *Session) bind(roomID, userID, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.userID = userID
	s.color = color
}

// Close tears the session down exactly once: stops the write pump, closes
// the socket, and withdraws the user from their room.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		roomID, userID := s.roomID, s.userID
		s.mu.Unlock()

		close(s.done)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			logging.Debug("connection close", zap.String("addr", s.addr), zap.Error(err))
		}

		if userID != "" {
			s.srv.registry.Leave(roomID, userID)
			s.srv.presence.RemoveUser(userID)
		}
		s.srv.removeSession(s)
	})
}

func (s *Session) readPump() {
	defer s.Close()

	timeout := s.srv.cfg.HeartbeatTimeout
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		// Any frame counts as liveness, not just pongs.
		_ = s.conn.SetReadDeadline(time.Now().Add(timeout))

		s.srv.dispatcher.Handle(s, raw)
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logging.Warn("frame exceeded maximum size",
			zap.String("addr", s.addr),
			zap.Int64("limit", s.srv.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		logging.Debug("client disconnected", zap.String("addr", s.addr))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		logging.Debug("connection closed", zap.String("addr", s.addr))
	default:
		logging.Warn("websocket read error", zap.String("addr", s.addr), zap.Error(err))
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.srv.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			if err := s.writeFrame(websocket.TextMessage, msg); err != nil {
				if !isExpectedCloseError(err) {
					logging.Debug("write failed", zap.String("addr", s.addr), zap.Error(err))
				}
				return
			}
		case <-ticker.C:
			if err := s.writeFrame(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.writeFrame(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (s *Session) writeFrame(messageType int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, payload)
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

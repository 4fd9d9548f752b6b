package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collabboard/server/internal/logging"
)

// Server is the broker process: the HTTP listener, the room registry, the
// presence and drawing services, and the set of live sessions.
type Server struct {
	cfg        *Config
	registry   *Registry
	presence   *Presence
	boards     *Boards
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu       sync.Mutex
	sessions map[*Session]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wires a server from cfg. A nil cfg gets defaults; out-of-range
// values are clamped.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.Sanitize()

	srv := &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.RoomGracePeriod),
		presence: NewPresence(cfg.Cursor, cfg.GhostTimeout),
		boards:   NewBoards(),
		sessions: make(map[*Session]struct{}),
		stop:     make(chan struct{}),
	}
	srv.dispatcher = NewDispatcher(srv.registry, srv.presence, srv.boards)

	origins := newOriginChecker(cfg.AllowedOrigins)
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}
	srv.httpServer = CreateServer(cfg.Port, srv.routes())
	return srv
}

// Run starts the janitor and the HTTP listener and blocks until the
// listener stops. A shutdown-initiated stop returns nil.
func (srv *Server) Run() error {
	srv.wg.Add(1)
	go srv.janitor()

	logging.Info("server listening", zap.String("addr", srv.cfg.Port))
	err := srv.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, closes every live session, and
// waits for background work, bounded by ctx.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.stopOnce.Do(func() { close(srv.stop) })

	err := srv.httpServer.Shutdown(ctx)

	srv.mu.Lock()
	open := make([]*Session, 0, len(srv.sessions))
	for s := range srv.sessions {
		open = append(open, s)
	}
	srv.mu.Unlock()
	for _, s := range open {
		s.Close()
	}

	srv.wg.Wait()
	logging.Info("server stopped")
	return err
}

// SessionCount returns the number of live sessions.
func (srv *Server) SessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// Registry exposes the room registry for inspection.
func (srv *Server) Registry() *Registry {
	return srv.registry
}

func (srv *Server) addSession(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.sessions[s] = struct{}{}
}

func (srv *Server) removeSession(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.sessions, s)
}

// janitor periodically marks idle members as ghosts and prunes stale
// rate-limiter state.
func (srv *Server) janitor() {
	defer srv.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			srv.presence.Sweep(srv.registry.Rooms())
		case <-srv.stop:
			return
		}
	}
}

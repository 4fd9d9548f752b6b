package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/collabboard/server/internal/logging"
)

// serverName is advertised in the upgrade response.
const serverName = "CollabBoard/1.0"

// handleWebSocket handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and starts the
// session's read/write pumps.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := srv.upgrader.Upgrade(w, r, http.Header{"Server": []string{serverName}})
	if err != nil {
		// Upgrade has already written the error response.
		logging.Warn("websocket upgrade failed",
			zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	session := NewSession(conn, srv, r.RemoteAddr)
	srv.addSession(session)
	logging.Debug("connection accepted", zap.String("addr", r.RemoteAddr))

	go session.writePump()
	go session.readPump()
}

// handleHealth provides a plain-text liveness check.
func (srv *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "OK")
}

package server

import "net/http"

// routes configures the HTTP ServeMux. The WebSocket endpoint answers on
// both "/" and "/ws" so either client convention works.
func (srv *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/ws", srv.handleWebSocket)
	mux.HandleFunc("/", srv.handleWebSocket)
	return mux
}

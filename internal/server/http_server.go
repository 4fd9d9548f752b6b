package server

import (
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified
// port and handler. Timeouts cover the handshake only; upgraded
// connections manage their own deadlines.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

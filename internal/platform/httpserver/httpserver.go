package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this project.
// requestTimeout bounds the whole read and write; zero leaves them unbounded.
func New(addr string, handler http.Handler, requestTimeout time.Duration) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if requestTimeout > 0 {
		srv.ReadTimeout = requestTimeout
		// leave room for the handler timeout middleware to write its response
		srv.WriteTimeout = requestTimeout + 5*time.Second
	}
	return srv
}

// Package httpserver builds the process's HTTP server. Timeouts are fixed
// here rather than configurable: the router already bounds request handling
// at 30 seconds, so the server only needs to cover slow headers, slow
// writers, and idle keep-alives.
package httpserver

import (
	"net/http"
	"time"
)

func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

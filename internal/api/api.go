// Package api: HTTP server bootstrap.
package api

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Run serves the boundary operations over HTTP on the given address,
// blocking until the listener fails.
func Run(addr string, svc *Service) error {
	if addr == "" {
		addr = DefaultAddr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           NewServer(svc).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("IntakeBridge API listening", "addr", addr)
	return server.ListenAndServe()
}

// Package server exposes the resolver over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"igresolver/pkg/config"
	"igresolver/pkg/logger"
)

// Server wraps http.Server with the configured timeouts
type Server struct {
	inner  *http.Server
	logger logger.Logger
}

// New constructs a server listening on the configured port
func New(cfg config.ServerConfig, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		logger: log,
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.InfoWithFields("HTTP server listening", map[string]interface{}{"addr": s.inner.Addr})
	if err := s.inner.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener
func (s *Server) Serve(l net.Listener) error {
	if err := s.inner.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.inner.Shutdown(ctx)
}

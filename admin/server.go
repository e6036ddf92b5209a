package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Server owns the admin HTTP listener lifecycle
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates the admin server; nothing is bound until Start
func NewServer(bindAddress string, port int, handler http.Handler) *Server {
	addr := fmt.Sprintf("%s:%d", bindAddress, port)
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background. Binding
// happens here so a taken port fails startup instead of being logged
// from a goroutine later.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind admin listener on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin HTTP server failed")
		}
	}()

	log.Info().Str("address", s.addr).Msg("Admin API listening")
	return nil
}

// Stop drains in-flight requests and closes the listener
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Admin HTTP server shutdown failed")
	}
}

// Package api exposes run submission, run history and published frames over
// HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/heimdex/edl-indexer/internal/frame"
	"github.com/heimdex/edl-indexer/internal/playback"
	"github.com/heimdex/edl-indexer/internal/runs"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

type ServerConfig struct {
	Host           string
	Port           int
	Version        string
	Runs           *runs.Service
	Repository     runs.Repository
	Runner         *runs.Runner
	Doctor         *frame.CachedDoctor
	Frames         *playback.Server // nil unless frames are published locally
	Publisher      string
	TableWriter    string
	MaxUploadBytes int64
	Logger         *slog.Logger
	StartTime      time.Time
}

func NewServer(cfg ServerConfig) *Server {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 15 * time.Second,
			// No read or write timeout: video uploads can take minutes.
			IdleTimeout: 60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Listen binds the configured address. Start calls it when it has not been
// called already; calling it first lets port 0 resolve before serving.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("starting HTTP server", "addr", s.Addr())

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr is the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

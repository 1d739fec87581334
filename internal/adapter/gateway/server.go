package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"finassist/internal/domain"
	"finassist/internal/infra/config"
	"finassist/internal/infra/middleware"
	"finassist/internal/usecase"
	"finassist/internal/usecase/streammux"
)

// Server is the HTTP gateway: SSE chat, WebSocket chat, and health.
type Server struct {
	cfg       config.Server
	agent     *usecase.Agent
	mux       *streammux.Multiplexer
	store     domain.ExpenseStore // optional, nil = no store check in healthz
	logger    *slog.Logger
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(cfg config.Server, agent *usecase.Agent, mux *streammux.Multiplexer, store domain.ExpenseStore, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		agent:  agent,
		mux:    mux,
		store:  store,
		logger: logger,
	}
}

// Handler builds the full middleware-wrapped route tree. The cleanup
// goroutine of the rate limiter stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	protect := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		wrapped = middleware.BearerAuth(s.cfg.AuthToken)(wrapped)
		wrapped = middleware.RateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.BurstSize)(wrapped)
		return wrapped
	}

	routes := http.NewServeMux()
	routes.Handle("/api/chat", protect(s.handleChat))
	routes.Handle("/ws", protect(s.handleWS))
	routes.HandleFunc("/healthz", s.handleHealthz)

	return middleware.SecurityHeaders(routes)
}

// Start begins serving. Blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid
// after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

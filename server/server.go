// Package server exposes the chat engine over HTTP and websocket, with an
// optional gRPC health service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/solus-ai/solus/engine"
)

// DefaultShutdownTimeout bounds graceful shutdown when Config leaves it unset.
const DefaultShutdownTimeout = 10 * time.Second

// Chatter runs one chat request.
type Chatter interface {
	Run(ctx context.Context, input *engine.Input) (*engine.Output, error)
}

// Memory is the part of memory.Store the server reports on and flushes.
type Memory interface {
	Count() int
	Dimension() int
	Save(ctx context.Context) error
}

// Model reports backend readiness.
type Model interface {
	Loaded() bool
}

// Config holds server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Verbose logs the duration of every chat request.
	Verbose bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithConfig sets listener and logging settings.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// Server routes HTTP requests to the engine.
type Server struct {
	chat   Chatter
	memory Memory
	model  Model
	cfg    Config
	logger *log.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server and registers its routes.
func New(chat Chatter, memory Memory, model Model, opts ...Option) *Server {
	s := &Server{
		chat:   chat,
		memory: memory,
		model:  model,
		cfg:    Config{Addr: ":8000", ShutdownTimeout: DefaultShutdownTimeout},
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("server")
	}
	if s.cfg.ShutdownTimeout <= 0 {
		s.cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.Use(s.recoverer)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/memory/clear", s.handleMemoryClear).Methods(http.MethodPost)
	s.router.HandleFunc("/memory/save", s.handleMemorySave).Methods(http.MethodPost)
	s.router.HandleFunc("/actions", s.handleActions).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

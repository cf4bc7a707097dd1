// Package server provides the HTTP API over the RAG core.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
)

// RAGService is the core the server dispatches to. A nil service means the
// core failed to initialize at startup; calls then fail fast with 503.
type RAGService interface {
	Ingest(ctx context.Context, files []models.SourceFile) (models.IngestionReport, error)
	Answer(ctx context.Context, question string, k int) (models.AnswerResult, error)
	AnswerStream(ctx context.Context, question string, k int, onDelta func(string)) (models.AnswerResult, error)
}

type Config struct {
	Host string
	Port int
}

// Server is the HTTP server for the chat API.
type Server struct {
	config  Config
	service RAGService
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. service may be nil.
func NewServer(config Config, service RAGService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:  config,
		service: service,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Generation can be slow; the timeout is the caller-level cancellation
	// for the whole pipeline call.
	r.Use(middleware.Timeout(120 * time.Second))

	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

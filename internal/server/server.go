// Package server provides the HTTP API the textbook's chat widget talks to.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/ingest"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/retrieval"
	"github.com/hyperjump/tutor/internal/tutor"
	"github.com/hyperjump/tutor/internal/vector"
)

// ChatService answers questions.
type ChatService interface {
	Answer(ctx context.Context, query, selectedText string) (tutor.Answer, error)
	AnswerSelection(ctx context.Context, query, selectedText string) (tutor.Answer, error)
}

// TranslateService translates chapter content.
type TranslateService interface {
	Translate(ctx context.Context, content, target string) (string, error)
}

// PersonalizeService adapts content to a reader.
type PersonalizeService interface {
	Personalize(ctx context.Context, content string, p tutor.Profile) (string, error)
	Explain(ctx context.Context, concept string, p tutor.Profile) (string, error)
}

// IngestService stores textbook content.
type IngestService interface {
	IngestDocument(ctx context.Context, doc models.Document) (ingest.Result, error)
	IngestDirectory(ctx context.Context, dir string, exts []string) (ingest.Summary, error)
}

// Deps are the services behind the API. Ingester and Collection are nil when the keyword
// strategy is active; the ingest endpoints then answer 503.
type Deps struct {
	Chat         ChatService
	Translator   TranslateService
	Personalizer PersonalizeService
	Retriever    retrieval.Retriever
	Ingester     IngestService
	Collection   *vector.Collection
}

// Server is the HTTP server for the tutor API.
type Server struct {
	deps   Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{deps: deps, config: cfg, logger: logger}
}

// Handler returns the routed and instrumented API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/selected", s.handleChatSelected)
		r.Post("/search", s.handleSearch)
		r.Post("/ingest", s.handleIngest)
		r.Post("/ingest/batch", s.handleIngestBatch)
		r.Post("/translate", s.handleTranslate)
		r.Post("/personalize", s.handlePersonalize)
		r.Post("/explain", s.handleExplain)
	})
	return otelhttp.NewHandler(r, "tutor")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

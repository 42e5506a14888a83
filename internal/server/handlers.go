package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/tutor"
)

type chatRequest struct {
	Message        string `json:"message"`
	SelectedText   string `json:"selected_text,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type searchResponse struct {
	Results []models.RetrievedChunk `json:"results"`
	Backend string                  `json:"backend"`
}

type ingestRequest struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Chapter string `json:"chapter,omitempty"`
}

type ingestResponse struct {
	ChunksIngested int    `json:"chunks_ingested"`
	Message        string `json:"message"`
}

type batchResponse struct {
	Message        string `json:"message"`
	FilesProcessed int    `json:"files_processed"`
	TotalChunks    int    `json:"total_chunks"`
}

type translateRequest struct {
	Content        string `json:"content"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedContent string `json:"translated_content"`
	SourceLanguage    string `json:"source_language"`
	TargetLanguage    string `json:"target_language"`
}

type personalizeRequest struct {
	Content string `json:"content"`
	tutor.Profile
}

type personalizeResponse struct {
	PersonalizedContent string `json:"personalized_content"`
	UserLevel           string `json:"user_level"`
}

type explainRequest struct {
	Concept string `json:"concept"`
	tutor.Profile
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "rag-chatbot"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"retrieval_backend": s.deps.Retriever.Name(),
		"chunk_size":        s.config.Chunking.Size,
		"chunk_overlap":     s.config.Chunking.Overlap,
		"embedding_model":   s.config.Embedding.Model,
		"chat_model":        s.config.Generation.Model,
	}
	if col := s.deps.Collection; col != nil {
		resp["vector_backend"] = col.Index().Backend()
		resp["collection"] = col.Name()
		resp["dimension"] = col.Dimension()
		n, err := col.Count(r.Context())
		if err != nil {
			s.logger.Warn("status: count failed", zap.Error(err))
			resp["count_error"] = err.Error()
		} else {
			resp["records"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("chat request",
		zap.Int("message_len", len(req.Message)),
		zap.Bool("selection", req.SelectedText != ""),
		zap.String("conversation_id", req.ConversationID))
	ans, err := s.deps.Chat.Answer(r.Context(), req.Message, req.SelectedText)
	if err != nil {
		s.fail(w, "chat", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleChatSelected(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	ans, err := s.deps.Chat.AnswerSelection(r.Context(), req.Message, req.SelectedText)
	if err != nil {
		s.fail(w, "chat selected", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if !s.decode(w, r, &query) {
		return
	}
	if err := query.Validate(s.config.Retrieval.DefaultLimit, s.config.Retrieval.MaxLimit); err != nil {
		s.fail(w, "search", err)
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	results, err := s.deps.Retriever.Retrieve(r.Context(), query.Query, query.Limit)
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	if results == nil {
		results = []models.RetrievedChunk{}
	}
	s.respondJSON(w, http.StatusOK, searchResponse{Results: results, Backend: s.deps.Retriever.Name()})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		s.fail(w, "ingest", apperr.NotConfigured("ingest", "vector backend"))
		return
	}
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Ingester.IngestDocument(r.Context(), models.Document{
		Text: req.Content, Source: req.Source, Chapter: req.Chapter,
	})
	if err != nil {
		s.fail(w, "ingest", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ingestResponse{
		ChunksIngested: res.Chunks,
		Message:        fmt.Sprintf("Successfully ingested %d chunks from %s", res.Chunks, req.Source),
	})
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		s.fail(w, "ingest batch", apperr.NotConfigured("ingest", "vector backend"))
		return
	}
	dir := s.config.Ingest.DocsDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		s.respondError(w, http.StatusNotFound, "Docs folder not found")
		return
	}
	sum, err := s.deps.Ingester.IngestDirectory(r.Context(), dir, s.config.Ingest.Extensions)
	if err != nil {
		s.fail(w, "ingest batch", err)
		return
	}
	s.respondJSON(w, http.StatusOK, batchResponse{
		Message:        fmt.Sprintf("Successfully ingested %d files", sum.Files),
		FilesProcessed: sum.Files,
		TotalChunks:    sum.Chunks,
	})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = tutor.DefaultTargetLanguage
	}
	out, err := s.deps.Translator.Translate(r.Context(), req.Content, req.TargetLanguage)
	if err != nil {
		s.fail(w, "translate", err)
		return
	}
	s.respondJSON(w, http.StatusOK, translateResponse{
		TranslatedContent: out,
		SourceLanguage:    tutor.SourceLanguage,
		TargetLanguage:    req.TargetLanguage,
	})
}

func (s *Server) handlePersonalize(w http.ResponseWriter, r *http.Request) {
	var req personalizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ExperienceLevel == "" {
		req.ExperienceLevel = "intermediate"
	}
	out, err := s.deps.Personalizer.Personalize(r.Context(), req.Content, req.Profile)
	if err != nil {
		s.fail(w, "personalize", err)
		return
	}
	s.respondJSON(w, http.StatusOK, personalizeResponse{PersonalizedContent: out, UserLevel: req.ExperienceLevel})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.deps.Personalizer.Explain(r.Context(), req.Concept, req.Profile)
	if err != nil {
		s.fail(w, "explain", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"explanation": out, "user_level": req.ExperienceLevel})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail logs err and writes it with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		s.logger.Error(op+" failed", zap.Error(err), zap.String("kind", apperr.KindOf(err).String()))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	if ra := apperr.RetryAfterOf(err); ra > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ra.Seconds()))))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

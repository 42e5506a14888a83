package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/generation"
	"github.com/hyperjump/tutor/internal/ingest"
	"github.com/hyperjump/tutor/internal/keyword"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/tutor"
	"github.com/hyperjump/tutor/internal/vector"
	"go.uber.org/zap"
)

type fakeIngester struct {
	docs []models.Document
	dirs []string
	err  error
}

func (f *fakeIngester) IngestDocument(_ context.Context, doc models.Document) (ingest.Result, error) {
	f.docs = append(f.docs, doc)
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{Source: doc.Source, Chunks: 3}, nil
}

func (f *fakeIngester) IngestDirectory(_ context.Context, dir string, _ []string) (ingest.Summary, error) {
	f.dirs = append(f.dirs, dir)
	return ingest.Summary{Files: 2, Chunks: 7}, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Ingest.DocsDir = t.TempDir()
	return cfg
}

func echoGenerator() generation.Generator {
	return generation.Func(func(_ context.Context, p generation.Prompt) (string, error) {
		return "reply to: " + p.User[strings.LastIndex(p.User, "\n")+1:], nil
	})
}

func newTestServer(t *testing.T, gen generation.Generator, ing IngestService, col *vector.Collection) (*Server, http.Handler) {
	t.Helper()
	cfg := testConfig(t)
	retriever := keyword.NewRetriever(keyword.DefaultCorpus())
	logger := zap.NewNop()
	srv := NewServer(Deps{
		Chat:         tutor.NewChat(retriever, gen, tutor.ChatConfig{}, logger),
		Translator:   tutor.NewTranslator(gen, logger),
		Personalizer: tutor.NewPersonalizer(gen, logger),
		Retriever:    retriever,
		Ingester:     ing,
		Collection:   col,
	}, cfg, logger)
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	for _, path := range []string{"/health", "/api/health"} {
		w := do(t, h, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status: got %d", path, w.Code)
		}
		var out map[string]string
		decodeBody(t, w, &out)
		if out["status"] != "healthy" || out["service"] != "rag-chatbot" {
			t.Errorf("%s body = %v", path, out)
		}
	}
}

func TestHandleChat(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	w := do(t, h, http.MethodPost, "/api/chat", chatRequest{Message: "What is LIDAR?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out tutor.Answer
	decodeBody(t, w, &out)
	if out.Response != "reply to: Question: What is LIDAR?" {
		t.Errorf("response = %q", out.Response)
	}
	if len(out.Sources) == 0 || len(out.Sources) > 3 {
		t.Errorf("sources = %v, want 1..3", out.Sources)
	}
}

func TestHandleChat_emptyMessage(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	w := do(t, h, http.MethodPost, "/api/chat", chatRequest{Message: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if !strings.Contains(out["error"], "query cannot be empty") {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleChat_invalidBody(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	w := do(t, h, http.MethodPost, "/api/chat", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleChat_providerErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not configured", apperr.NotConfigured("generation", "OPENAI_API_KEY"), http.StatusServiceUnavailable},
		{"auth", apperr.New(apperr.KindAuth, "generation", errors.New("401")), http.StatusBadGateway},
		{"rate limited", &apperr.Error{Kind: apperr.KindRateLimited, Op: "generation", Err: errors.New("429"), RetryAfter: 2 * time.Second}, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := generation.Func(func(context.Context, generation.Prompt) (string, error) { return "", tt.err })
			_, h := newTestServer(t, gen, nil, nil)
			w := do(t, h, http.MethodPost, "/api/chat", chatRequest{Message: "lidar"})
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "2" {
				t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestHandleChatSelected(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	w := do(t, h, http.MethodPost, "/api/chat/selected", chatRequest{Message: "explain", SelectedText: "ZMP keeps the robot upright"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out tutor.Answer
	decodeBody(t, w, &out)
	if len(out.Sources) != 1 || out.Sources[0].Source != "selected" || out.Sources[0].Score != 1 {
		t.Errorf("sources = %+v", out.Sources)
	}

	w = do(t, h, http.MethodPost, "/api/chat/selected", chatRequest{Message: "explain"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing selection status: got %d", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	w := do(t, h, http.MethodPost, "/api/search", models.SearchQuery{Query: "laser pulses", Limit: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out searchResponse
	decodeBody(t, w, &out)
	if out.Backend != "keyword" {
		t.Errorf("backend = %q", out.Backend)
	}
	if len(out.Results) == 0 || out.Results[0].Source != "module-2-digital-twin/sensors.md" {
		t.Errorf("results = %+v", out.Results)
	}

	w = do(t, h, http.MethodPost, "/api/search", models.SearchQuery{Query: "zzzz-no-match"})
	decodeBody(t, w, &out)
	if out.Results == nil || len(out.Results) != 0 {
		t.Errorf("no-match results = %v, want empty list", out.Results)
	}

	w = do(t, h, http.MethodPost, "/api/search", models.SearchQuery{Query: " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status: got %d", w.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	ing := &fakeIngester{}
	_, h := newTestServer(t, echoGenerator(), ing, nil)
	w := do(t, h, http.MethodPost, "/api/ingest", ingestRequest{Content: "text", Source: "a.md", Chapter: "one"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out ingestResponse
	decodeBody(t, w, &out)
	if out.ChunksIngested != 3 || out.Message != "Successfully ingested 3 chunks from a.md" {
		t.Errorf("body = %+v", out)
	}
	if len(ing.docs) != 1 || ing.docs[0].Chapter != "one" || ing.docs[0].Text != "text" {
		t.Errorf("docs = %+v", ing.docs)
	}
}

func TestHandleIngest_dimensionMismatch(t *testing.T) {
	ing := &fakeIngester{err: apperr.DimensionMismatch("ingest", 3, 1536)}
	_, h := newTestServer(t, echoGenerator(), ing, nil)
	w := do(t, h, http.MethodPost, "/api/ingest", ingestRequest{Content: "text", Source: "a.md"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleIngest_withoutVectorBackend(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	for _, path := range []string{"/api/ingest", "/api/ingest/batch"} {
		w := do(t, h, http.MethodPost, path, ingestRequest{Content: "x", Source: "a.md"})
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status: got %d", path, w.Code)
		}
	}
}

func TestHandleIngestBatch(t *testing.T) {
	ing := &fakeIngester{}
	srv, h := newTestServer(t, echoGenerator(), ing, nil)
	w := do(t, h, http.MethodPost, "/api/ingest/batch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out batchResponse
	decodeBody(t, w, &out)
	if out.FilesProcessed != 2 || out.TotalChunks != 7 {
		t.Errorf("body = %+v", out)
	}
	if len(ing.dirs) != 1 || ing.dirs[0] != srv.config.Ingest.DocsDir {
		t.Errorf("dirs = %v", ing.dirs)
	}

	srv.config.Ingest.DocsDir = filepath.Join(t.TempDir(), "missing")
	w = do(t, h, http.MethodPost, "/api/ingest/batch", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing docs status: got %d", w.Code)
	}
}

func TestHandleTranslate(t *testing.T) {
	var prompt string
	gen := generation.Func(func(_ context.Context, p generation.Prompt) (string, error) {
		prompt = p.User
		return "اردو", nil
	})
	_, h := newTestServer(t, gen, nil, nil)
	w := do(t, h, http.MethodPost, "/api/translate", translateRequest{Content: "Hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out translateResponse
	decodeBody(t, w, &out)
	if out.TranslatedContent != "اردو" || out.SourceLanguage != "english" || out.TargetLanguage != "urdu" {
		t.Errorf("body = %+v", out)
	}
	if !strings.Contains(prompt, "to Urdu") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestHandlePersonalize(t *testing.T) {
	var system string
	gen := generation.Func(func(_ context.Context, p generation.Prompt) (string, error) {
		system = p.System
		return "adapted", nil
	})
	_, h := newTestServer(t, gen, nil, nil)
	w := do(t, h, http.MethodPost, "/api/personalize", map[string]interface{}{
		"content": "# Gait", "experience_level": "beginner", "background": "cs",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out personalizeResponse
	decodeBody(t, w, &out)
	if out.PersonalizedContent != "adapted" || out.UserLevel != "beginner" {
		t.Errorf("body = %+v", out)
	}
	if !strings.Contains(system, "- Interests: robotics") {
		t.Errorf("default interests missing from prompt: %q", system)
	}

	w = do(t, h, http.MethodPost, "/api/personalize", map[string]interface{}{"content": "x"})
	decodeBody(t, w, &out)
	if out.UserLevel != "intermediate" {
		t.Errorf("default level = %q", out.UserLevel)
	}
}

func TestHandleExplain(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	w := do(t, h, http.MethodPost, "/api/explain", map[string]interface{}{"concept": "SLAM"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/explain", map[string]interface{}{"concept": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty concept status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	col := vector.NewCollection(vector.NewMemoryIndex(), "book", 2, vector.MetricCosine)
	if err := col.Upsert(context.Background(), []models.IndexRecord{{ID: "1", Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	_, h := newTestServer(t, echoGenerator(), &fakeIngester{}, col)
	w := do(t, h, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	decodeBody(t, w, &out)
	if out["retrieval_backend"] != "keyword" || out["vector_backend"] != "memory" || out["collection"] != "book" {
		t.Errorf("body = %v", out)
	}
	if out["records"] != float64(1) || out["dimension"] != float64(2) {
		t.Errorf("records/dimension = %v/%v", out["records"], out["dimension"])
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t, echoGenerator(), nil, nil)
	r := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	r.Header.Set("Origin", "https://book.example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("missing Access-Control-Allow-Origin")
	}
}

func TestStopWithoutStart(t *testing.T) {
	srv, _ := newTestServer(t, echoGenerator(), nil, nil)
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

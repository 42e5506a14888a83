package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

func newTestEmbedder(t *testing.T, url string, dims int) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "sk-test",
		BaseURL:    url,
		Model:      "text-embedding-3-small",
		Dimensions: dims,
		Retry:      fastRetry,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func writeEmbedding(w http.ResponseWriter, vec []float32) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": []map[string]any{{"embedding": vec, "index": 0}},
	})
}

func TestNewOpenAIEmbedder_missingKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	if !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindConfiguration {
		t.Errorf("kind = %v", apperr.KindOf(err))
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeEmbedding(w, []float32{0.1, 0.2, 0.3})
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 3)
	vec, err := e.Embed(context.Background(), "What is LIDAR?")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
	if got.Input != "What is LIDAR?" || got.Model != "text-embedding-3-small" || got.Dimensions != 3 {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAIEmbedder_dimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbedding(w, []float32{0.1, 0.2})
	}))
	defer srv.Close()

	_, err := newTestEmbedder(t, srv.URL, 3).Embed(context.Background(), "x")
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestOpenAIEmbedder_statusMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantKind  apperr.Kind
		wantCalls int32
	}{
		{http.StatusUnauthorized, apperr.KindAuth, 1},
		{http.StatusForbidden, apperr.KindAuth, 1},
		{http.StatusBadRequest, apperr.KindProvider, 1},
		{http.StatusTooManyRequests, apperr.KindRateLimited, 3},
		{http.StatusServiceUnavailable, apperr.KindUnavailable, 3},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
			}))
			defer srv.Close()

			_, err := newTestEmbedder(t, srv.URL, 3).Embed(context.Background(), "x")
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v (err %v)", apperr.KindOf(err), tt.wantKind, err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestOpenAIEmbedder_retriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeEmbedding(w, []float32{1, 0, 0})
	}))
	defer srv.Close()

	vec, err := newTestEmbedder(t, srv.URL, 3).Embed(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if vec[0] != 1 || calls.Load() != 2 {
		t.Errorf("vec = %v calls = %d", vec, calls.Load())
	}
}

func TestOpenAIEmbedder_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestEmbedder(t, url, 3).Embed(context.Background(), "x")
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Errorf("kind = %v, want unavailable (err %v)", apperr.KindOf(err), err)
	}
}

func TestOpenAIEmbedder_emptyText(t *testing.T) {
	e := newTestEmbedder(t, "http://127.0.0.1:1", 3)
	_, err := e.Embed(context.Background(), "  ")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("kind = %v", apperr.KindOf(err))
	}
}

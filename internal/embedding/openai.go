package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/retry"
)

const op = "embedding"

// OpenAIConfig configures an OpenAI-compatible /embeddings client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Retry      retry.Policy
	Pacer      *retry.Pacer
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the embeddings endpoint, one input per request.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// Option configures an OpenAIEmbedder.
type Option func(*OpenAIEmbedder)

// WithLogger sets a logger for request debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// NewOpenAIEmbedder returns a configuration error when no API key is set.
func NewOpenAIEmbedder(cfg OpenAIConfig, opts ...Option) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, apperr.NotConfigured(op, "OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	e := &OpenAIEmbedder{cfg: cfg, client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type embeddingRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	Dimensions     int    `json:"dimensions,omitempty"`
	EncodingFormat string `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the embedding of text. Transient failures are retried per the configured
// policy; a vector whose length differs from Dimensions is a dimension mismatch.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validationf(op, "cannot embed empty text")
	}
	var vec []float32
	err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) error {
		if err := e.cfg.Pacer.Wait(ctx); err != nil {
			return err
		}
		v, err := e.embedOnce(ctx, text)
		if err != nil {
			e.logger.Debug("embedding request failed", zap.String("model", e.cfg.Model), zap.Error(err))
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vec) != e.cfg.Dimensions {
		return nil, apperr.DimensionMismatch(op, len(vec), e.cfg.Dimensions)
	}
	return vec, nil
}

func (e *OpenAIEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body := embeddingRequest{Input: text, Model: e.cfg.Model, EncodingFormat: "float"}
	// Only the text-embedding-3 family accepts a dimensions override.
	if strings.HasPrefix(e.cfg.Model, "text-embedding-3") {
		body.Dimensions = e.cfg.Dimensions
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Unreachable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.FromStatus(op, resp.StatusCode, string(excerpt), resp.Header.Get("Retry-After"))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.New(apperr.KindProvider, op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, apperr.New(apperr.KindProvider, op, fmt.Errorf("no embedding returned"))
	}
	return out.Data[0].Embedding, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.cfg.Model }

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

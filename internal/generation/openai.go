package generation

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

const op = "generation"

// OpenAIConfig configures an OpenAI-compatible /chat/completions client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Retry      retry.Policy
	Pacer      *retry.Pacer
	HTTPClient *http.Client
}

// OpenAIGenerator calls the chat completions endpoint.
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// Option configures an OpenAIGenerator.
type Option func(*OpenAIGenerator)

// WithLogger sets a logger for request debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *OpenAIGenerator) { g.logger = l }
}

// NewOpenAIGenerator returns a configuration error when no API key is set.
func NewOpenAIGenerator(cfg OpenAIConfig, opts ...Option) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, apperr.NotConfigured(op, "OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	g := &OpenAIGenerator{cfg: cfg, client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends p and returns the first choice's content. Transient failures are retried.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if strings.TrimSpace(p.User) == "" {
		return "", apperr.Validationf(op, "prompt is empty")
	}
	var out string
	err := retry.Do(ctx, g.cfg.Retry, func(ctx context.Context) error {
		if err := g.cfg.Pacer.Wait(ctx); err != nil {
			return err
		}
		text, err := g.generateOnce(ctx, p)
		if err != nil {
			g.logger.Debug("chat completion failed", zap.String("model", g.cfg.Model), zap.Error(err))
			return err
		}
		out = text
		return nil
	})
	return out, err
}

func (g *OpenAIGenerator) generateOnce(ctx context.Context, p Prompt) (string, error) {
	body := chatRequest{Model: g.cfg.Model, MaxTokens: p.MaxTokens}
	if p.Temperature > 0 {
		t := p.Temperature
		body.Temperature = &t
	}
	if p.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: p.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: p.User})

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Unreachable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperr.FromStatus(op, resp.StatusCode, string(excerpt), resp.Header.Get("Retry-After"))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.New(apperr.KindProvider, op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", apperr.New(apperr.KindProvider, op, fmt.Errorf("no choices returned"))
	}
	return out.Choices[0].Message.Content, nil
}

// Model returns the chat model name.
func (g *OpenAIGenerator) Model() string { return g.cfg.Model }

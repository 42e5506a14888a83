// Package tutor holds the question answering, translation and personalization services
// that sit on top of retrieval and generation.
package tutor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/generation"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/retrieval"
	"github.com/hyperjump/tutor/pkg/utils"
)

// SelectedSource is the source name reported for a user's highlighted passage.
const SelectedSource = "selected"

const selectionExcerptRunes = 200

// Answer is a generated reply plus the passages it was grounded on.
type Answer struct {
	Response string                  `json:"response"`
	Sources  []models.RetrievedChunk `json:"sources"`
}

// ChatConfig sets retrieval depth and how many sources are returned.
type ChatConfig struct {
	Limit           int
	SourcesReturned int
	MaxTokens       int
	Temperature     float64
}

// Chat answers questions about the textbook.
type Chat struct {
	retriever retrieval.Retriever
	generator generation.Generator
	cfg       ChatConfig
	logger    *zap.Logger
}

// NewChat returns a Chat. Zero config fields take the usual defaults: 5 passages, 3 sources,
// 1000 tokens at temperature 0.7.
func NewChat(r retrieval.Retriever, g generation.Generator, cfg ChatConfig, logger *zap.Logger) *Chat {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.SourcesReturned <= 0 {
		cfg.SourcesReturned = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	return &Chat{retriever: r, generator: g, cfg: cfg, logger: utils.OrNop(logger)}
}

// Answer retrieves passages for query and asks the generator to answer from them.
// selectedText, when set, is quoted in the prompt alongside the retrieved context.
func (c *Chat) Answer(ctx context.Context, query, selectedText string) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, apperr.Validation("chat", apperr.ErrEmptyQuery)
	}
	chunks, err := c.retriever.Retrieve(ctx, query, c.cfg.Limit)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}
	reply, err := c.generate(ctx, query, retrieval.BuildContext(chunks), selectedText)
	if err != nil {
		return Answer{}, err
	}
	sources := chunks
	if len(sources) > c.cfg.SourcesReturned {
		sources = sources[:c.cfg.SourcesReturned]
	}
	if sources == nil {
		sources = []models.RetrievedChunk{}
	}
	c.logger.Debug("chat answered",
		zap.String("backend", c.retriever.Name()),
		zap.Int("passages", len(chunks)),
		zap.Bool("selection", selectedText != ""))
	return Answer{Response: reply, Sources: sources}, nil
}

// AnswerSelection answers query using only selectedText as context. No retrieval happens.
func (c *Chat) AnswerSelection(ctx context.Context, query, selectedText string) (Answer, error) {
	if strings.TrimSpace(selectedText) == "" {
		return Answer{}, apperr.Validation("chat", apperr.ErrSelectionRequired)
	}
	if strings.TrimSpace(query) == "" {
		return Answer{}, apperr.Validation("chat", apperr.ErrEmptyQuery)
	}
	reply, err := c.generate(ctx, query, selectedText, selectedText)
	if err != nil {
		return Answer{}, err
	}
	return Answer{
		Response: reply,
		Sources: []models.RetrievedChunk{{
			Text:   utils.FirstRunes(selectedText, selectionExcerptRunes),
			Source: SelectedSource,
			Score:  1,
		}},
	}, nil
}

func (c *Chat) generate(ctx context.Context, query, contextText, selectedText string) (string, error) {
	return c.generator.Generate(ctx, generation.Prompt{
		System:      systemPrompt,
		User:        BuildUserMessage(query, contextText, selectedText),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
}

// BuildUserMessage lays out the context block, the optional quoted selection and the question.
func BuildUserMessage(query, contextText, selectedText string) string {
	var b strings.Builder
	b.WriteString("Context from the textbook:\n")
	b.WriteString(contextText)
	b.WriteString("\n\n")
	if selectedText != "" {
		b.WriteString("The user has selected this text:\n\"")
		b.WriteString(selectedText)
		b.WriteString("\"\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// Package retrieval turns a query into ranked textbook passages.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/vector"
)

// Retriever returns up to limit passages for query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error)
	Name() string
}

// VectorRetriever embeds the query and searches the collection.
type VectorRetriever struct {
	embedder   embedding.Embedder
	collection *vector.Collection
	logger     *zap.Logger
}

// Option configures a VectorRetriever.
type Option func(*VectorRetriever)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *VectorRetriever) { r.logger = l }
}

// NewVectorRetriever returns a retriever over collection.
func NewVectorRetriever(e embedding.Embedder, c *vector.Collection, opts ...Option) *VectorRetriever {
	r := &VectorRetriever{embedder: e, collection: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns "vector".
func (r *VectorRetriever) Name() string { return "vector" }

// Retrieve keeps the index's ranking order; hits are only reshaped.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	if err := models.CheckQuery("vector retrieve", query, limit); err != nil {
		return nil, err
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.collection.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.collection.Name(), err)
	}
	out := make([]models.RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = models.FromHit(h)
	}
	r.logger.Debug("vector retrieve", zap.Int("limit", limit), zap.Int("hits", len(out)))
	return out, nil
}

// BuildContext joins passage texts with blank lines, in the given order.
func BuildContext(chunks []models.RetrievedChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}

type traced struct {
	Retriever
}

// Traced wraps r so each call records an OpenTelemetry span.
func Traced(r Retriever) Retriever {
	return traced{Retriever: r}
}

func (t traced) Retrieve(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	ctx, span := otel.Tracer("internal/retrieval").Start(ctx, "retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.backend", t.Retriever.Name()),
		attribute.Int("retrieval.limit", limit),
	)
	out, err := t.Retriever.Retrieve(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(out)))
	return out, nil
}

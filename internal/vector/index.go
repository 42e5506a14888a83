// Package vector stores chunk embeddings and answers nearest-neighbor queries.
package vector

import (
	"context"

	"github.com/hyperjump/tutor/internal/models"
)

// Metric is the distance a collection ranks by.
type Metric string

const (
	// MetricCosine ranks by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricDot ranks by inner product.
	MetricDot Metric = "dot"
)

// Index owns every stored IndexRecord. Nothing else reads or writes the backing store.
type Index interface {
	// EnsureCollection creates the collection if absent. An existing collection is left
	// untouched, even if its dimension or metric differ.
	EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error
	// Upsert writes records; an existing id is replaced entirely, payload included.
	Upsert(ctx context.Context, collection string, records []models.IndexRecord) error
	// Search returns at most limit hits ordered by descending similarity.
	Search(ctx context.Context, collection string, query []float32, limit int) ([]models.Hit, error)
	// DeleteFrom removes the records of source whose chunk_index is >= fromIndex.
	DeleteFrom(ctx context.Context, collection, source string, fromIndex int) error
	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)
	// Backend names the implementation ("memory", "sqlite", "qdrant").
	Backend() string
	Close() error
}

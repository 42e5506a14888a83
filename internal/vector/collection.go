package vector

import (
	"context"
	"sync"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

// Collection binds an Index to one named collection with a fixed dimension and metric.
// The collection is created on first use; a failed creation is retried on the next call.
type Collection struct {
	index     Index
	name      string
	dimension int
	metric    Metric

	mu      sync.Mutex
	ensured bool
}

// NewCollection returns a handle; nothing is created until first use.
func NewCollection(index Index, name string, dimension int, metric Metric) *Collection {
	if metric == "" {
		metric = MetricCosine
	}
	return &Collection{index: index, name: name, dimension: dimension, metric: metric}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dimension returns the vector dimension records must have.
func (c *Collection) Dimension() int { return c.dimension }

// Index returns the backing index.
func (c *Collection) Index() Index { return c.index }

// Ensure creates the collection if this handle has not done so yet.
func (c *Collection) Ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensured {
		return nil
	}
	if err := c.index.EnsureCollection(ctx, c.name, c.dimension, c.metric); err != nil {
		return err
	}
	c.ensured = true
	return nil
}

// Upsert checks every vector against the collection dimension before writing any of them.
func (c *Collection) Upsert(ctx context.Context, records []models.IndexRecord) error {
	for _, r := range records {
		if len(r.Vector) != c.dimension {
			return apperr.DimensionMismatch("vector upsert", len(r.Vector), c.dimension)
		}
	}
	if err := c.Ensure(ctx); err != nil {
		return err
	}
	return c.index.Upsert(ctx, c.name, records)
}

// Search returns at most limit hits for query.
func (c *Collection) Search(ctx context.Context, query []float32, limit int) ([]models.Hit, error) {
	if limit <= 0 {
		return nil, apperr.Validation("vector search", apperr.ErrInvalidLimit)
	}
	if len(query) != c.dimension {
		return nil, apperr.DimensionMismatch("vector search", len(query), c.dimension)
	}
	if err := c.Ensure(ctx); err != nil {
		return nil, err
	}
	return c.index.Search(ctx, c.name, query, limit)
}

// DeleteFrom removes source's records at chunk_index >= fromIndex.
func (c *Collection) DeleteFrom(ctx context.Context, source string, fromIndex int) error {
	if err := c.Ensure(ctx); err != nil {
		return err
	}
	return c.index.DeleteFrom(ctx, c.name, source, fromIndex)
}

// Count returns the number of stored records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.Ensure(ctx); err != nil {
		return 0, err
	}
	return c.index.Count(ctx, c.name)
}

package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

// MemoryIndex is an in-process index using brute-force search. Suitable for tests and
// small corpora; contents are lost on exit.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dimension int
	metric    Metric
	// order keeps first-insertion order so equal scores rank deterministically.
	order   []string
	records map[string]models.IndexRecord
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memCollection)}
}

// Backend returns "memory".
func (m *MemoryIndex) Backend() string { return "memory" }

// EnsureCollection creates the collection if it does not exist.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error {
	if dimension <= 0 {
		return apperr.Validationf("vector", "dimension must be positive, got %d", dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return nil
	}
	m.collections[name] = &memCollection{
		dimension: dimension,
		metric:    metric,
		records:   make(map[string]models.IndexRecord),
	}
	return nil
}

func (m *MemoryIndex) collection(name string) (*memCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, apperr.New(apperr.KindProvider, "vector", fmt.Errorf("%w: %s", apperr.ErrCollectionNotExists, name))
	}
	return c, nil
}

// Upsert stores copies of records, replacing existing ids.
func (m *MemoryIndex) Upsert(ctx context.Context, collection string, records []models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != c.dimension {
			return apperr.DimensionMismatch("vector upsert", len(r.Vector), c.dimension)
		}
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if _, exists := c.records[r.ID]; !exists {
			c.order = append(c.order, r.ID)
		}
		c.records[r.ID] = models.IndexRecord{ID: r.ID, Vector: vec, Payload: r.Payload}
	}
	return nil
}

// Search ranks every record against query.
func (m *MemoryIndex) Search(ctx context.Context, collection string, query []float32, limit int) ([]models.Hit, error) {
	if limit <= 0 {
		return nil, apperr.Validation("vector search", apperr.ErrInvalidLimit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != c.dimension {
		return nil, apperr.DimensionMismatch("vector search", len(query), c.dimension)
	}
	hits := make([]models.Hit, 0, len(c.order))
	for _, id := range c.order {
		r := c.records[id]
		hits = append(hits, models.Hit{ID: id, Score: Score(c.metric, query, r.Vector), Payload: r.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteFrom removes source's records at or after fromIndex.
func (m *MemoryIndex) DeleteFrom(ctx context.Context, collection, source string, fromIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	kept := c.order[:0]
	for _, id := range c.order {
		p := c.records[id].Payload
		if p.Source == source && p.ChunkIndex >= fromIndex {
			delete(c.records, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return nil
}

// Count returns the number of records in collection.
func (m *MemoryIndex) Count(ctx context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return 0, err
	}
	return len(c.records), nil
}

// Get returns the stored record for id.
func (m *MemoryIndex) Get(collection, id string) (models.IndexRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return models.IndexRecord{}, false
	}
	r, ok := c.records[id]
	return r, ok
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

func record(id, source string, idx int, vec ...float32) models.IndexRecord {
	return models.IndexRecord{
		ID:      id,
		Vector:  vec,
		Payload: models.Payload{Text: "text " + id, ChunkIndex: idx, Source: source, Chapter: "ch"},
	}
}

// testIndexContract exercises the Index behavior every backend shares.
func testIndexContract(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("ensure is idempotent", func(t *testing.T) {
		idx := newIndex(t)
		if err := idx.EnsureCollection(ctx, "c", 3, MetricCosine); err != nil {
			t.Fatal(err)
		}
		if err := idx.EnsureCollection(ctx, "c", 3, MetricCosine); err != nil {
			t.Fatalf("second ensure: %v", err)
		}
		// An existing collection is not altered.
		if err := idx.EnsureCollection(ctx, "c", 8, MetricDot); err != nil {
			t.Fatalf("ensure with other params: %v", err)
		}
		err := idx.Upsert(ctx, "c", []models.IndexRecord{record("a", "s", 0, 1, 0, 0)})
		if err != nil {
			t.Fatalf("collection should keep dimension 3: %v", err)
		}
	})

	t.Run("search orders by similarity and respects limit", func(t *testing.T) {
		idx := newIndex(t)
		_ = idx.EnsureCollection(ctx, "c", 3, MetricCosine)
		err := idx.Upsert(ctx, "c", []models.IndexRecord{
			record("a", "s", 0, 1, 0, 0),
			record("b", "s", 1, 0.9, 0.1, 0),
			record("c", "s", 2, 0, 1, 0),
		})
		if err != nil {
			t.Fatal(err)
		}
		hits, err := idx.Search(ctx, "c", []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 2 {
			t.Fatalf("expected 2 hits, got %d", len(hits))
		}
		if hits[0].ID != "a" || hits[1].ID != "b" {
			t.Errorf("order = %s, %s", hits[0].ID, hits[1].ID)
		}
		if hits[0].Score < hits[1].Score {
			t.Error("scores should be descending")
		}
		if hits[0].Payload.Text != "text a" || hits[0].Payload.Source != "s" {
			t.Errorf("payload = %+v", hits[0].Payload)
		}

		all, _ := idx.Search(ctx, "c", []float32{1, 0, 0}, 10)
		if len(all) != 3 {
			t.Errorf("limit above size should return all 3, got %d", len(all))
		}
	})

	t.Run("upsert replaces payload entirely", func(t *testing.T) {
		idx := newIndex(t)
		_ = idx.EnsureCollection(ctx, "c", 2, MetricCosine)
		_ = idx.Upsert(ctx, "c", []models.IndexRecord{record("a", "old.md", 0, 1, 0)})
		replaced := models.IndexRecord{ID: "a", Vector: []float32{0, 1},
			Payload: models.Payload{Text: "new", ChunkIndex: 4, Source: "new.md", Chapter: "x"}}
		if err := idx.Upsert(ctx, "c", []models.IndexRecord{replaced}); err != nil {
			t.Fatal(err)
		}
		n, _ := idx.Count(ctx, "c")
		if n != 1 {
			t.Errorf("count = %d, want 1", n)
		}
		hits, _ := idx.Search(ctx, "c", []float32{0, 1}, 1)
		if len(hits) != 1 || hits[0].Payload != replaced.Payload {
			t.Errorf("hits = %+v", hits)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		idx := newIndex(t)
		_ = idx.EnsureCollection(ctx, "c", 3, MetricCosine)
		err := idx.Upsert(ctx, "c", []models.IndexRecord{record("a", "s", 0, 1, 0)})
		if !errors.Is(err, apperr.ErrDimensionMismatch) {
			t.Errorf("upsert: expected dimension mismatch, got %v", err)
		}
		_, err = idx.Search(ctx, "c", []float32{1}, 1)
		if apperr.KindOf(err) != apperr.KindDimensionMismatch {
			t.Errorf("search: expected dimension mismatch, got %v", err)
		}
	})

	t.Run("delete from index", func(t *testing.T) {
		idx := newIndex(t)
		_ = idx.EnsureCollection(ctx, "c", 2, MetricCosine)
		_ = idx.Upsert(ctx, "c", []models.IndexRecord{
			record("a0", "a.md", 0, 1, 0),
			record("a1", "a.md", 1, 1, 0),
			record("a2", "a.md", 2, 1, 0),
			record("b2", "b.md", 2, 1, 0),
		})
		if err := idx.DeleteFrom(ctx, "c", "a.md", 1); err != nil {
			t.Fatal(err)
		}
		n, _ := idx.Count(ctx, "c")
		if n != 2 {
			t.Errorf("count = %d, want 2", n)
		}
		hits, _ := idx.Search(ctx, "c", []float32{1, 0}, 10)
		for _, h := range hits {
			if h.ID == "a1" || h.ID == "a2" {
				t.Errorf("%s should have been deleted", h.ID)
			}
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		idx := newIndex(t)
		_ = idx.EnsureCollection(ctx, "c", 2, MetricCosine)
		_, err := idx.Search(ctx, "c", []float32{1, 0}, 0)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("missing collection", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Count(ctx, "nope")
		if !errors.Is(err, apperr.ErrCollectionNotExists) {
			t.Errorf("expected ErrCollectionNotExists, got %v", err)
		}
	})
}

func TestMemoryIndex(t *testing.T) {
	testIndexContract(t, func(t *testing.T) Index { return NewMemoryIndex() })
}

func TestSQLiteIndex(t *testing.T) {
	testIndexContract(t, func(t *testing.T) Index {
		idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	})
}

func TestMemoryIndex_tiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	_ = idx.EnsureCollection(ctx, "c", 2, MetricCosine)
	_ = idx.Upsert(ctx, "c", []models.IndexRecord{
		record("z", "s", 0, 1, 0),
		record("y", "s", 1, 1, 0),
		record("x", "s", 2, 1, 0),
	})
	hits, _ := idx.Search(ctx, "c", []float32{1, 0}, 3)
	if hits[0].ID != "z" || hits[1].ID != "y" || hits[2].ID != "x" {
		t.Errorf("tie order = %s %s %s", hits[0].ID, hits[1].ID, hits[2].ID)
	}
	if r, ok := idx.Get("c", "y"); !ok || r.Payload.ChunkIndex != 1 {
		t.Errorf("Get(y) = %+v, %v", r, ok)
	}
}

func TestSQLiteIndex_persistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "vectors.db")
	idx, err := NewSQLiteIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = idx.EnsureCollection(ctx, "book", 2, MetricDot)
	if err := idx.Upsert(ctx, "book", []models.IndexRecord{record("a", "s", 0, 2, 0)}); err != nil {
		t.Fatal(err)
	}
	_ = idx.Close()

	reopened, err := NewSQLiteIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	hits, err := reopened.Search(ctx, "book", []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Dot metric: 2*1 + 0*0.
	if len(hits) != 1 || hits[0].Score != 2 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestFloat32Bytes(t *testing.T) {
	in := []float32{0.5, -1.25, 3e-7}
	out := bytesToFloat32Slice(float32SliceToBytes(in))
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %v != %v", i, in[i], out[i])
		}
	}
}

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/keyword"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/vector"
)

// tableEmbedder returns fixed vectors per text.
type tableEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return []float32{0, 0, 1}, nil
	}
	return v, nil
}
func (e *tableEmbedder) Dimensions() int { return 3 }
func (e *tableEmbedder) Close() error    { return nil }

func seededCollection(t *testing.T) *vector.Collection {
	t.Helper()
	c := vector.NewCollection(vector.NewMemoryIndex(), "book", 3, vector.MetricCosine)
	err := c.Upsert(context.Background(), []models.IndexRecord{
		{ID: "1", Vector: []float32{1, 0, 0}, Payload: models.Payload{Text: "LIDAR measures distance", Source: "sensors.md"}},
		{ID: "2", Vector: []float32{0.7, 0.7, 0}, Payload: models.Payload{Text: "Cameras and LIDAR fuse", Source: "fusion.md"}},
		{ID: "3", Vector: []float32{0, 1, 0}, Payload: models.Payload{Text: "Gait planning", Source: "gait.md"}},
	})
	require.NoError(t, err)
	return c
}

func TestVectorRetriever_ranksAndProjects(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"what is lidar": {1, 0, 0}}}
	r := NewVectorRetriever(emb, seededCollection(t))

	results, err := r.Retrieve(context.Background(), "what is lidar", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "sensors.md", results[0].Source)
	assert.Equal(t, "LIDAR measures distance", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "fusion.md", results[1].Source)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, "vector", r.Name())
}

func TestVectorRetriever_fewerRecordsThanLimit(t *testing.T) {
	r := NewVectorRetriever(&tableEmbedder{}, seededCollection(t))
	results, err := r.Retrieve(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestVectorRetriever_validatesBeforeEmbedding(t *testing.T) {
	emb := &tableEmbedder{}
	r := NewVectorRetriever(emb, seededCollection(t))
	_, err := r.Retrieve(context.Background(), "", 5)
	assert.ErrorIs(t, err, apperr.ErrEmptyQuery)
	_, err = r.Retrieve(context.Background(), "lidar", -1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, emb.calls, "no external call on invalid input")
}

func TestVectorRetriever_propagatesProviderErrors(t *testing.T) {
	emb := &tableEmbedder{err: apperr.New(apperr.KindAuth, "embedding", errors.New("401"))}
	r := NewVectorRetriever(emb, seededCollection(t))
	_, err := r.Retrieve(context.Background(), "lidar", 5)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestVectorRetriever_dimensionMismatch(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	r := NewVectorRetriever(emb, seededCollection(t))
	_, err := r.Retrieve(context.Background(), "q", 5)
	assert.ErrorIs(t, err, apperr.ErrDimensionMismatch)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]models.RetrievedChunk{{Text: "first"}, {Text: "second"}, {Text: "third"}})
	assert.Equal(t, "first\n\nsecond\n\nthird", got)
	assert.Equal(t, "", BuildContext(nil))
}

func TestNew_strategies(t *testing.T) {
	kw, err := New(StrategyKeyword, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "keyword", kw.Name())
	results, err := kw.Retrieve(context.Background(), "What is LIDAR?", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	custom, err := New(StrategyKeyword, Deps{Corpus: []keyword.Entry{{Text: "only entry", Source: "x"}}})
	require.NoError(t, err)
	results, err = custom.Retrieve(context.Background(), "entry", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].Source)

	vec, err := New(StrategyVector, Deps{Embedder: &tableEmbedder{}, Collection: seededCollection(t)})
	require.NoError(t, err)
	assert.Equal(t, "vector", vec.Name())

	_, err = New(StrategyVector, Deps{})
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)

	_, err = New("bm25", Deps{})
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

// Both strategies return the same shape, so callers cannot tell them apart.
func TestStrategiesAreInterchangeable(t *testing.T) {
	kw, _ := New(StrategyKeyword, Deps{Corpus: []keyword.Entry{{Text: "LIDAR measures distance", Source: "sensors.md"}}})
	vec, _ := New(StrategyVector, Deps{
		Embedder:   &tableEmbedder{vectors: map[string][]float32{"lidar": {1, 0, 0}}},
		Collection: seededCollection(t),
	})
	for _, r := range []Retriever{kw, vec} {
		results, err := r.Retrieve(context.Background(), "lidar", 1)
		require.NoError(t, err, r.Name())
		require.Len(t, results, 1, r.Name())
		assert.Equal(t, "sensors.md", results[0].Source, r.Name())
	}
}

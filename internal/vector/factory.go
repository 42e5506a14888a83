package vector

import (
	"fmt"

	"github.com/hyperjump/tutor/internal/apperr"
)

// Backend identifiers accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Options carries the per-backend settings New may need.
type Options struct {
	SQLitePath string
	Qdrant     QdrantConfig
}

// New creates an index of the named backend.
func New(backend string, opts Options) (Index, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryIndex(), nil
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, apperr.NotConfigured("vector", "sqlite path")
		}
		return NewSQLiteIndex(opts.SQLitePath)
	case BackendQdrant:
		return NewQdrantIndex(opts.Qdrant)
	default:
		return nil, apperr.New(apperr.KindConfiguration, "vector",
			fmt.Errorf("unknown index backend: %s (supported: memory, sqlite, qdrant)", backend))
	}
}

// ParseMetric maps a config string to a Metric; anything but "dot" is cosine.
func ParseMetric(s string) Metric {
	if s == string(MetricDot) {
		return MetricDot
	}
	return MetricCosine
}

package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/extract"
)

// Validate rejects settings that would make a component misbehave. It runs before anything
// is constructed, so a bad chunk window never reaches the chunker.
func (c *Config) Validate() error {
	const op = "config"
	if c.Chunking.Size <= 0 {
		return apperr.Validationf(op, "chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return apperr.Validationf(op, "chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return apperr.Validation(op, fmt.Errorf("%w (overlap=%d, size=%d)",
			apperr.ErrInvalidChunkWindow, c.Chunking.Overlap, c.Chunking.Size))
	}
	if c.Embedding.Dimensions <= 0 {
		return apperr.Validationf(op, "embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Retrieval.Backend {
	case BackendAuto, BackendVector, BackendKeyword:
	default:
		return apperr.Validationf(op, "unknown retrieval.backend %q", c.Retrieval.Backend)
	}
	switch c.Vector.Backend {
	case BackendAuto, VectorQdrant, VectorSQLite, VectorMemory:
	default:
		return apperr.Validationf(op, "unknown vector.backend %q", c.Vector.Backend)
	}
	switch c.Vector.Metric {
	case "cosine", "dot":
	default:
		return apperr.Validationf(op, "unknown vector.metric %q", c.Vector.Metric)
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return apperr.Validationf(op, "retrieval.default_limit %d exceeds max_limit %d",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}
	if c.Retry.MaxAttempts < 1 {
		return apperr.Validationf(op, "retry.max_attempts must be at least 1")
	}
	for _, ext := range c.Ingest.Extensions {
		if !slices.Contains(extract.SupportedExtensions, "."+strings.TrimPrefix(strings.ToLower(ext), ".")) {
			return apperr.Validationf(op, "unsupported ingest extension %q (supported: %s)",
				ext, strings.Join(extract.SupportedExtensions, ", "))
		}
	}
	return nil
}

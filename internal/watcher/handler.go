package watcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/ingest"
)

// Ingester is the subset of *ingest.Ingester the watcher drives.
type Ingester interface {
	IngestFile(ctx context.Context, root, path string) (ingest.Result, error)
	RemoveSource(ctx context.Context, source string) error
}

// IngestHandler re-ingests changed files and drops the records of removed ones.
// Failures are logged; the watcher keeps running.
type IngestHandler struct {
	Root     string
	Ingester Ingester
	Logger   *zap.Logger
}

func (h IngestHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h IngestHandler) Changed(ctx context.Context, path string) {
	res, err := h.Ingester.IngestFile(ctx, h.Root, path)
	if err != nil {
		h.logger().Warn("re-ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	h.logger().Info("re-ingested", zap.String("source", res.Source), zap.Int("chunks", res.Chunks))
}

func (h IngestHandler) Removed(ctx context.Context, path string) {
	source, _, err := ingest.SourceFor(h.Root, path)
	if err != nil {
		h.logger().Warn("remove skipped", zap.String("path", path), zap.Error(err))
		return
	}
	if err := h.Ingester.RemoveSource(ctx, source); err != nil {
		h.logger().Warn("remove failed", zap.String("source", source), zap.Error(err))
		return
	}
	h.logger().Info("removed", zap.String("source", source))
}

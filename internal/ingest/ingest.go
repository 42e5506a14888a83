// Package ingest chunks documents, embeds each chunk and upserts the records into a vector collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/chunker"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/extract"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/vector"
)

// IntroChapter is the chapter of files that sit directly in the docs root.
const IntroChapter = "intro"

// DefaultExtensions are the textbook file types ingested when none are given.
var DefaultExtensions = []string{".md", ".mdx"}

const (
	defaultParallelism = 1
	defaultBatchSize   = 64
)

// Result reports one ingested document.
type Result struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks_ingested"`
}

// Summary reports a directory ingestion.
type Summary struct {
	Files  int `json:"files_processed"`
	Chunks int `json:"total_chunks"`
}

// ChunkError names the chunk whose embedding or upsert failed. Chunks of the same
// document upserted before it stay in the index.
type ChunkError struct {
	Source     string
	ChunkIndex int
	Err        error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("ingest %s chunk %d: %v", e.Source, e.ChunkIndex, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Ingester writes documents into one collection.
type Ingester struct {
	chunker     *chunker.Chunker
	embedder    embedding.Embedder
	collection  *vector.Collection
	extractor   *extract.Extractor
	parallelism int
	batchSize   int
	logger      *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// WithParallelism bounds concurrent embedding calls within a batch. n < 1 means 1.
func WithParallelism(n int) Option {
	return func(in *Ingester) {
		if n >= 1 {
			in.parallelism = n
		}
	}
}

// WithBatchSize sets how many chunks are embedded before each upsert.
func WithBatchSize(n int) Option {
	return func(in *Ingester) {
		if n >= 1 {
			in.batchSize = n
		}
	}
}

// New returns an Ingester.
func New(c *chunker.Chunker, e embedding.Embedder, col *vector.Collection, opts ...Option) *Ingester {
	in := &Ingester{
		chunker:     c,
		embedder:    e,
		collection:  col,
		extractor:   extract.NewExtractor(),
		parallelism: defaultParallelism,
		batchSize:   defaultBatchSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Collection returns the target collection.
func (in *Ingester) Collection() *vector.Collection { return in.collection }

// IngestDocument chunks doc and upserts one record per chunk in chunk order. Once every chunk
// is stored, records of the same source beyond the new chunk count are removed so a shrunken
// document leaves no stale tail.
//
// Text that is empty or only whitespace is skipped without any embedding or index call, so
// records stored by an earlier ingestion of the same source are left in place. Use
// RemoveSource to drop them.
func (in *Ingester) IngestDocument(ctx context.Context, doc models.Document) (Result, error) {
	ctx, span := otel.Tracer("internal/ingest").Start(ctx, "ingest.document")
	defer span.End()
	span.SetAttributes(attribute.String("ingest.source", doc.Source))

	res, err := in.ingestDocument(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("ingest.chunks", res.Chunks))
	return res, nil
}

func (in *Ingester) ingestDocument(ctx context.Context, doc models.Document) (Result, error) {
	res := Result{Source: doc.Source}
	if strings.TrimSpace(doc.Source) == "" {
		return res, apperr.Validationf("ingest", "source is required")
	}
	if strings.TrimSpace(doc.Text) == "" {
		in.logger.Debug("ingest skipping blank document", zap.String("source", doc.Source))
		return res, nil
	}
	chunks, err := in.chunker.Chunk(doc)
	if err != nil {
		return res, err
	}
	if len(chunks) == 0 {
		in.logger.Debug("ingest skipping empty document", zap.String("source", doc.Source))
		return res, nil
	}

	for start := 0; start < len(chunks); start += in.batchSize {
		end := min(start+in.batchSize, len(chunks))
		batch := chunks[start:end]
		records, err := in.embedBatch(ctx, batch)
		if err != nil {
			return res, err
		}
		if err := in.collection.Upsert(ctx, records); err != nil {
			return res, &ChunkError{Source: doc.Source, ChunkIndex: batch[0].ChunkIndex, Err: err}
		}
		res.Chunks = end
	}

	if err := in.collection.DeleteFrom(ctx, doc.Source, len(chunks)); err != nil {
		return res, fmt.Errorf("remove stale chunks of %s: %w", doc.Source, err)
	}
	in.logger.Debug("ingest document stored",
		zap.String("source", doc.Source),
		zap.String("chapter", doc.ChapterOrDefault()),
		zap.Int("chunks", len(chunks)))
	return res, nil
}

// embedBatch embeds batch with bounded parallelism. Records come back in chunk order. When
// several chunks fail the lowest index is reported.
func (in *Ingester) embedBatch(ctx context.Context, batch []models.Chunk) ([]models.IndexRecord, error) {
	records := make([]models.IndexRecord, len(batch))
	errs := make([]error, len(batch))
	dim := in.collection.Dimension()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.parallelism)
	for i, ch := range batch {
		g.Go(func() error {
			vec, err := in.embedder.Embed(gctx, ch.Text)
			if err == nil && len(vec) != dim {
				err = apperr.DimensionMismatch("ingest", len(vec), dim)
			}
			if err != nil {
				errs[i] = &ChunkError{Source: ch.Source, ChunkIndex: ch.ChunkIndex, Err: err}
				return errs[i]
			}
			records[i] = models.IndexRecord{ID: ch.ID, Vector: vec, Payload: ch.Payload()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errs {
			if e != nil && !errors.Is(e, context.Canceled) {
				return nil, e
			}
		}
		return nil, err
	}
	return records, nil
}

// RemoveSource deletes every record of source.
func (in *Ingester) RemoveSource(ctx context.Context, source string) error {
	in.logger.Debug("ingest removing source", zap.String("source", source))
	return in.collection.DeleteFrom(ctx, source, 0)
}

// SourceFor returns the source and chapter recorded for path under root: the slash-separated
// relative path, and its first directory or IntroChapter for top-level files.
func SourceFor(root, path string) (source, chapter string, err error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("absolute path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("absolute path: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%s is outside %s", path, root)
	}
	source = filepath.ToSlash(rel)
	chapter = IntroChapter
	if i := strings.IndexByte(source, '/'); i > 0 {
		chapter = source[:i]
	}
	return source, chapter, nil
}

// IngestFile extracts the text of path and ingests it with a source relative to root.
func (in *Ingester) IngestFile(ctx context.Context, root, path string) (Result, error) {
	source, chapter, err := SourceFor(root, path)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{Source: source}, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Result{Source: source}, fmt.Errorf("not a regular file: %s", path)
	}
	text, err := in.extractor.Extract(path)
	if err != nil {
		return Result{Source: source}, fmt.Errorf("extract %s: %w", source, err)
	}
	in.logger.Debug("ingest file", zap.String("path", path), zap.String("source", source))
	return in.IngestDocument(ctx, models.Document{Text: text, Source: source, Chapter: chapter})
}

// IngestDirectory walks dir recursively and ingests every regular file whose extension is in
// exts (DefaultExtensions when empty), in lexical path order. It stops at the first error.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, exts []string) (Summary, error) {
	var sum Summary
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	info, err := os.Stat(dir)
	if err != nil {
		return sum, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return sum, fmt.Errorf("not a directory: %s", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(path, exts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := in.IngestFile(ctx, dir, path)
		if err != nil {
			return sum, err
		}
		sum.Files++
		sum.Chunks += res.Chunks
	}
	in.logger.Info("ingest directory done",
		zap.String("dir", dir), zap.Int("files", sum.Files), zap.Int("chunks", sum.Chunks))
	return sum, nil
}

// ExtensionAllowed reports whether path's extension is in exts, ignoring case and leading dots.
func ExtensionAllowed(path string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, a := range exts {
		if strings.TrimPrefix(strings.ToLower(a), ".") == ext {
			return true
		}
	}
	return false
}

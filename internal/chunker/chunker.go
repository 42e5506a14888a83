// Package chunker splits documents into overlapping token windows.
package chunker

import (
	"fmt"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/chunkid"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/tokenizer"
)

// Window is a half-open token range [Start, End).
type Window struct {
	Start, End int
}

// Chunker cuts text into windows of Size tokens that overlap by Overlap tokens.
type Chunker struct {
	tok     tokenizer.Tokenizer
	size    int
	overlap int
}

// ValidateWindow rejects a size/overlap pair that would not advance.
func ValidateWindow(size, overlap int) error {
	if size <= 0 {
		return apperr.Validationf("chunker", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return apperr.Validationf("chunker", "chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return apperr.Validation("chunker", fmt.Errorf("%w (overlap=%d, size=%d)",
			apperr.ErrInvalidChunkWindow, overlap, size))
	}
	return nil
}

// New returns a chunker, or a validation error when overlap >= size.
func New(tok tokenizer.Tokenizer, size, overlap int) (*Chunker, error) {
	if err := ValidateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{tok: tok, size: size, overlap: overlap}, nil
}

// Size returns the window size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between consecutive windows in tokens.
func (c *Chunker) Overlap() int { return c.overlap }

// Windows returns the token ranges covering n tokens. A document of at most size tokens is
// a single window. Longer documents get a window at every multiple of size-overlap below n,
// so the final windows may be short and lie entirely inside their predecessor.
func (c *Chunker) Windows(n int) []Window {
	if n <= 0 {
		return nil
	}
	if n <= c.size {
		return []Window{{Start: 0, End: n}}
	}
	step := c.size - c.overlap
	windows := make([]Window, 0, (n+step-1)/step)
	for start := 0; start < n; start += step {
		windows = append(windows, Window{Start: start, End: min(start+c.size, n)})
	}
	return windows
}

// Split returns the chunk texts of text in document order. Empty text yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	tokens, err := c.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	windows := c.Windows(len(tokens))
	out := make([]string, 0, len(windows))
	for _, w := range windows {
		out = append(out, c.tok.Decode(tokens[w.Start:w.End]))
	}
	return out, nil
}

// Chunk splits doc and stamps each piece with its index, id and the document's metadata.
func (c *Chunker) Chunk(doc models.Document) ([]models.Chunk, error) {
	texts, err := c.Split(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", doc.Source, err)
	}
	chapter := doc.ChapterOrDefault()
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:         chunkid.For(doc.Source, i),
			Text:       text,
			ChunkIndex: i,
			Source:     doc.Source,
			Chapter:    chapter,
		}
	}
	return chunks, nil
}

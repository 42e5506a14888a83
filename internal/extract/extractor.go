// Package extract turns textbook source files into the plain text that gets chunked.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the file types Extract understands.
var SupportedExtensions = []string{".md", ".mdx", ".txt", ".pdf", ".docx"}

// Extractor extracts plain text from textbook files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// Markdown keeps its body verbatim after the front matter block is removed; MDX additionally
// drops top-level import lines. PDF and DOCX text is pulled out of the binary format.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are treated as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".md":
		return extractMarkdown(content, false)
	case ".mdx":
		return extractMarkdown(content, true)
	default:
		return extractPlain(content)
	}
}

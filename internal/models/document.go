// Package models defines the data shapes that flow through ingestion and retrieval.
package models

// UnknownChapter is the chapter recorded when a document has none.
const UnknownChapter = "unknown"

// Document is raw text plus metadata handed to ingestion. It is never persisted as such.
type Document struct {
	Text    string `json:"content"`
	Source  string `json:"source"`
	Chapter string `json:"chapter,omitempty"`
}

// ChapterOrDefault returns the chapter, or UnknownChapter when empty.
func (d Document) ChapterOrDefault() string {
	if d.Chapter == "" {
		return UnknownChapter
	}
	return d.Chapter
}

// Chunk is a contiguous token-bounded piece of a document.
type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	Source     string `json:"source"`
	Chapter    string `json:"chapter"`
}

// Payload is the metadata stored alongside a vector.
type Payload struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	Source     string `json:"source"`
	Chapter    string `json:"chapter"`
}

// Payload returns the record payload for c.
func (c Chunk) Payload() Payload {
	return Payload{Text: c.Text, ChunkIndex: c.ChunkIndex, Source: c.Source, Chapter: c.Chapter}
}

// IndexRecord is one (id, vector, payload) tuple owned by a vector index.
type IndexRecord struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one vector search result. Higher Score means more similar.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

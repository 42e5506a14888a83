package models

// RetrievedChunk is the shape every retriever returns.
type RetrievedChunk struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// FromHit projects a vector hit into the result shape.
func FromHit(h Hit) RetrievedChunk {
	return RetrievedChunk{Text: h.Payload.Text, Source: h.Payload.Source, Score: h.Score}
}

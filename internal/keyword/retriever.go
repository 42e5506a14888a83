package keyword

import (
	"context"
	"sort"
	"strings"

	"github.com/hyperjump/tutor/internal/models"
)

// Retriever scores corpus entries by how many query terms occur in them.
// The corpus is fixed at construction and safe for concurrent reads.
type Retriever struct {
	entries []Entry
	lowered []string
}

// NewRetriever copies entries; later changes to the slice do not affect the retriever.
func NewRetriever(entries []Entry) *Retriever {
	r := &Retriever{
		entries: append([]Entry(nil), entries...),
		lowered: make([]string, len(entries)),
	}
	for i, e := range r.entries {
		r.lowered[i] = strings.ToLower(e.Text)
	}
	return r
}

// Name returns "keyword".
func (r *Retriever) Name() string { return "keyword" }

// Len returns the corpus size.
func (r *Retriever) Len() int { return len(r.entries) }

// Retrieve lower-cases query and splits it on whitespace. An entry's score is the number of
// terms (repeats included) that occur as substrings of its lower-cased text. Entries scoring
// zero are dropped; the rest are ordered by descending score with corpus order kept on ties,
// and the first limit are returned.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	if err := models.CheckQuery("keyword retrieve", query, limit); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))

	results := make([]models.RetrievedChunk, 0, len(r.entries))
	for i, text := range r.lowered {
		score := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		results = append(results, models.RetrievedChunk{
			Text:   r.entries[i].Text,
			Source: r.entries[i].Source,
			Score:  float64(score),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Package cli formats command output for the tutor CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/tutor"
	"github.com/hyperjump/tutor/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json" (any case); anything else is an error.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// SearchResults is what the search command prints.
type SearchResults struct {
	Query   string                  `json:"query"`
	Backend string                  `json:"backend"`
	Results []models.RetrievedChunk `json:"results"`
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, res SearchResults, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\nFound %d results for %q (%s)\n\n", len(res.Results), res.Query, res.Backend)
	for i, r := range res.Results {
		writeOneResult(w, i+1, r)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, r models.RetrievedChunk) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank, r.Score)
	fmt.Fprintf(w, "Source: %s\n", r.Source)
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Text, 200))
	fmt.Fprintln(w)
}

// WriteAnswer writes a chat answer and its sources.
func WriteAnswer(w io.Writer, ans tutor.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(ans.Response))
	if len(ans.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range ans.Sources {
			fmt.Fprintf(w, "  - %s (%.4f)\n", s.Source, s.Score)
		}
	}
	return nil
}

// WriteStatus writes key/value status lines in key order given by keys.
func WriteStatus(w io.Writer, status map[string]interface{}, keys []string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	for _, k := range keys {
		if v, ok := status[k]; ok {
			fmt.Fprintf(w, "%-18s %v\n", k+":", v)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

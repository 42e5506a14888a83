package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/tutor"
)

func sampleResults() SearchResults {
	return SearchResults{
		Query:   "lidar",
		Backend: "vector",
		Results: []models.RetrievedChunk{
			{Text: "LIDAR sensors emit laser pulses", Source: "module-2/sensors.md", Score: 0.91},
			{Text: strings.Repeat("x", 300), Source: "module-2/fusion.md", Score: 0.5},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResults(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded SearchResults
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "lidar" || decoded.Backend != "vector" || len(decoded.Results) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Results[0].Source != "module-2/sensors.md" {
		t.Errorf("first source = %q", decoded.Results[0].Source)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResults(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`Found 2 results for "lidar" (vector)`,
		"Rank: 1 | Score: 0.9100",
		"Source: module-2/sensors.md",
		strings.Repeat("x", 200) + "...",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 201)) {
		t.Error("long text was not truncated")
	}
}

func TestWriteSearchResults_textEmpty(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, SearchResults{Query: "q", Backend: "keyword"}, OutputText)
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriteAnswer(t *testing.T) {
	ans := tutor.Answer{
		Response: "  LIDAR times laser reflections.\n",
		Sources:  []models.RetrievedChunk{{Source: "sensors.md", Score: 0.8}},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, ans, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "LIDAR times laser reflections.\n\nSources:\n  - sensors.md (0.8000)") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	if err := WriteAnswer(&buf, ans, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded tutor.Answer
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Sources) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteStatus(t *testing.T) {
	status := map[string]interface{}{"collection": "book", "records": 12, "ignored": true}
	var buf bytes.Buffer
	_ = WriteStatus(&buf, status, []string{"collection", "records", "missing"}, OutputText)
	out := buf.String()
	if !strings.Contains(out, "collection:") || !strings.Contains(out, "12") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "ignored") || strings.Contains(out, "missing") {
		t.Errorf("unexpected keys in %q", out)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

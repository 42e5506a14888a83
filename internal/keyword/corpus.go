// Package keyword is the credential-free retrieval fallback: substring keyword overlap
// over a small fixed corpus.
package keyword

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var defaultCorpus []byte

// Entry is one passage of the corpus.
type Entry struct {
	Text   string `yaml:"text"`
	Source string `yaml:"source"`
}

type corpusFile struct {
	Entries []Entry `yaml:"entries"`
}

// DefaultCorpus returns the built-in passages.
func DefaultCorpus() []Entry {
	entries, err := parseCorpus(defaultCorpus)
	if err != nil {
		panic(fmt.Sprintf("keyword: embedded corpus is invalid: %v", err))
	}
	return entries
}

// LoadCorpus reads a corpus YAML file with the same layout as the built-in one.
func LoadCorpus(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	entries, err := parseCorpus(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", path, err)
	}
	return entries, nil
}

func parseCorpus(data []byte) ([]Entry, error) {
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, e := range f.Entries {
		if e.Text == "" {
			return nil, fmt.Errorf("entry %d has no text", i)
		}
	}
	return f.Entries, nil
}

// Package tokenizer converts text to BPE token ids and back. Chunk boundaries are measured
// in the same tokens the embedding and chat models use.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/hyperjump/tutor/internal/apperr"
)

// DefaultEncoding is the BPE used by text-embedding-3-* and gpt-4o-mini era models.
const DefaultEncoding = "cl100k_base"

// Tokenizer encodes text to token ids and decodes them back.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) string
}

var loaderOnce sync.Once

// Tiktoken is a Tokenizer backed by an OpenAI BPE encoding. Safe for concurrent use.
type Tiktoken struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// New loads the named encoding. BPE ranks are compiled into the binary, so no network
// access is needed.
func New(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "tokenizer",
			fmt.Errorf("load encoding %q: %w", encoding, err))
	}
	return &Tiktoken{enc: enc, encoding: encoding}, nil
}

// Encoding returns the encoding name.
func (t *Tiktoken) Encoding() string { return t.encoding }

// Encode returns the token ids of text. Special-token text is encoded as ordinary text.
// Input that is not valid UTF-8 is rejected rather than silently repaired.
func (t *Tiktoken) Encode(text string) ([]int, error) {
	if !utf8.ValidString(text) {
		return nil, apperr.Validation("tokenizer", apperr.ErrMalformedText)
	}
	if text == "" {
		return nil, nil
	}
	return t.enc.Encode(text, nil, nil), nil
}

// Decode returns the text for tokens. A window cut can split a multi-byte character
// across two chunks; the dangling bytes become U+FFFD.
func (t *Tiktoken) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}
	return strings.ToValidUTF8(t.enc.Decode(tokens), "�")
}

// Count returns the number of tokens in text.
func Count(tok Tokenizer, text string) (int, error) {
	ids, err := tok.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

package tutor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/generation"
	"github.com/hyperjump/tutor/pkg/utils"
)

// DefaultTargetLanguage is used when a translation request names none.
const DefaultTargetLanguage = "urdu"

// SourceLanguage is the language textbook content is written in.
const SourceLanguage = "english"

// Translator translates chapter content, leaving code and technical terms in English.
type Translator struct {
	generator generation.Generator
	logger    *zap.Logger
}

// NewTranslator returns a Translator.
func NewTranslator(g generation.Generator, logger *zap.Logger) *Translator {
	return &Translator{generator: g, logger: utils.OrNop(logger)}
}

// Translate returns content translated into target (DefaultTargetLanguage when empty).
func (t *Translator) Translate(ctx context.Context, content, target string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.Validationf("translate", "content cannot be empty")
	}
	if target == "" {
		target = DefaultTargetLanguage
	}
	lang := languageName(target)
	t.logger.Debug("translating", zap.String("target", target), zap.Int("length", len(content)))
	out, err := t.generator.Generate(ctx, generation.Prompt{
		User:        fmt.Sprintf(translatePrompt, lang, lang, lang, content),
		MaxTokens:   4000,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	t.logger.Debug("translation done", zap.Int("length", len(out)))
	return out, nil
}

// languageName capitalizes an ASCII language code such as "urdu" for use in the prompt.
func languageName(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

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

// Profile describes a reader.
type Profile struct {
	ExperienceLevel   string   `json:"experience_level"`
	Background        string   `json:"background"`
	Interests         []string `json:"interests"`
	PreferredExamples string   `json:"preferred_examples"`
}

// Normalized fills unknown or empty fields: level intermediate, background other,
// interests robotics, examples python.
func (p Profile) Normalized() Profile {
	if _, ok := levelInstructions[p.ExperienceLevel]; !ok {
		p.ExperienceLevel = "intermediate"
	}
	if _, ok := backgroundContext[p.Background]; !ok {
		p.Background = "other"
	}
	if len(p.Interests) == 0 {
		p.Interests = []string{"robotics"}
	}
	if p.PreferredExamples == "" {
		p.PreferredExamples = "python"
	}
	return p
}

// Personalizer rewrites content for a reader's level and background.
type Personalizer struct {
	generator generation.Generator
	logger    *zap.Logger
}

// NewPersonalizer returns a Personalizer.
func NewPersonalizer(g generation.Generator, logger *zap.Logger) *Personalizer {
	return &Personalizer{generator: g, logger: utils.OrNop(logger)}
}

// Personalize adapts content to p.
func (s *Personalizer) Personalize(ctx context.Context, content string, p Profile) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.Validationf("personalize", "content cannot be empty")
	}
	s.logger.Debug("personalizing", zap.String("level", p.ExperienceLevel), zap.String("background", p.Background))
	return s.generator.Generate(ctx, generation.Prompt{
		System:      PersonalizationPrompt(p),
		User:        "Adapt this content:\n\n" + content,
		MaxTokens:   4000,
		Temperature: 0.5,
	})
}

// Explain writes a short explanation of concept pitched at p.
func (s *Personalizer) Explain(ctx context.Context, concept string, p Profile) (string, error) {
	if strings.TrimSpace(concept) == "" {
		return "", apperr.Validationf("explain", "concept cannot be empty")
	}
	n := p.Normalized()
	return s.generator.Generate(ctx, generation.Prompt{
		User:      fmt.Sprintf(explainPrompt, concept, n.ExperienceLevel, n.Background, strings.Join(n.Interests, ", ")),
		MaxTokens: 1000,
	})
}

// PersonalizationPrompt builds the system prompt for p. The profile section echoes what the
// reader declared; the instruction tables fall back per Normalized.
func PersonalizationPrompt(p Profile) string {
	n := p.Normalized()
	level, background := p.ExperienceLevel, p.Background
	if level == "" {
		level = n.ExperienceLevel
	}
	if background == "" {
		background = n.Background
	}
	return fmt.Sprintf(personalizePrompt,
		level, background, strings.Join(n.Interests, ", "), n.PreferredExamples,
		levelInstructions[n.ExperienceLevel], backgroundContext[n.Background])
}

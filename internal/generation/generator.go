// Package generation calls a chat-completions provider to produce text from a prompt.
package generation

import (
	"context"

	"github.com/hyperjump/tutor/internal/apperr"
)

// Prompt is one system + user exchange.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Unconfigured fails every call with a configuration error naming What.
type Unconfigured struct {
	What string
}

func (u Unconfigured) Generate(context.Context, Prompt) (string, error) {
	what := u.What
	if what == "" {
		what = "generation provider"
	}
	return "", apperr.NotConfigured("generation", what)
}

// Func adapts a function to a Generator.
type Func func(ctx context.Context, p Prompt) (string, error)

func (f Func) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// Package llm wraps the completion providers behind a single-prompt
// Completer and parses the JSON objects models return.
package llm

import (
	"context"
	"strings"
)

// Completer generates a completion for one prompt. Providers are configured
// for deterministic sampling: temperature zero and a single candidate.
type Completer interface {
	Generate(ctx context.Context, prompt string) (*Completion, error)
	Model() string
}

// Completion is the text of the first candidate. Candidates counts the
// candidates that carried content.
type Completion struct {
	Candidates int
	Text       string
}

// Empty reports whether the provider returned no usable content.
func (c *Completion) Empty() bool {
	return c == nil || c.Candidates == 0 || strings.TrimSpace(c.Text) == ""
}

// Options configures a provider.
type Options struct {
	Model           string
	APIKey          string
	BaseURL         string // openai-compatible endpoints only
	MaxOutputTokens int
}

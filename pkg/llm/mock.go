package llm

import (
	"context"
	"sync"
)

// MockCompleter is a configurable Completer for tests.
type MockCompleter struct {
	// GenerateFunc is called by Generate. If nil, Generate returns an empty completion.
	GenerateFunc func(ctx context.Context, prompt string) (*Completion, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	mu      sync.Mutex
	prompts []string
}

// NewMockCompleter creates a mock that answers every prompt with text.
func NewMockCompleter(texts ...string) *MockCompleter {
	m := &MockCompleter{}
	if len(texts) > 0 {
		m.GenerateFunc = Sequence(texts...)
	}
	return m
}

// Generate implements Completer.
func (m *MockCompleter) Generate(ctx context.Context, prompt string) (*Completion, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return &Completion{}, nil
}

// Model implements Completer.
func (m *MockCompleter) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Calls returns the number of Generate calls.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the prompts received so far.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Reset clears call tracking.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
}

// Sequence returns a GenerateFunc answering with texts in order; the last
// text repeats once exhausted. An empty string yields a completion with no
// candidates.
func Sequence(texts ...string) func(context.Context, string) (*Completion, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, prompt string) (*Completion, error) {
		mu.Lock()
		defer mu.Unlock()
		text := texts[len(texts)-1]
		if i < len(texts) {
			text = texts[i]
		}
		i++
		if text == "" {
			return &Completion{}, nil
		}
		return &Completion{Candidates: 1, Text: text}, nil
	}
}

var _ Completer = (*MockCompleter)(nil)

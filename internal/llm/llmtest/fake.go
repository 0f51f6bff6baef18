// Package llmtest provides scripted backends for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/axiom/sqlagent/internal/llm"
)

// Func is a backend whose behaviour is a function
type Func struct {
	ID string
	Fn func(ctx context.Context, prompt string, s llm.Settings) (string, error)

	mu      sync.Mutex
	prompts []string
}

// Name implements llm.Backend.
func (f *Func) Name() string { return f.ID }

// Generate implements llm.Backend.
func (f *Func) Generate(ctx context.Context, prompt string, s llm.Settings) (*llm.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	text, err := f.Fn(ctx, prompt, s)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text, Provider: llm.ProviderOllama, Model: f.ID}, nil
}

// Prompts returns every prompt received so far.
func (f *Func) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Calls returns how many times the backend was called.
func (f *Func) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// Static returns a backend that always answers text
func Static(id, text string) *Func {
	return &Func{ID: id, Fn: func(context.Context, string, llm.Settings) (string, error) { return text, nil }}
}

// Failing returns a backend that always fails with err
func Failing(id string, err error) *Func {
	return &Func{ID: id, Fn: func(context.Context, string, llm.Settings) (string, error) { return "", err }}
}

// Unit wraps backends into a model unit with a retry budget of 2
func Unit(name string, backends ...llm.Backend) *llm.ModelUnit {
	return llm.NewModelUnit(name, llm.Settings{Temperature: 0.2}, 2, backends...)
}

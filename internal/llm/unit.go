package llm

import (
	"context"
	"errors"
	"fmt"
)

// ModelUnit is one callable generation capability: an ordered chain of
// backends where the first successful call wins.
type ModelUnit struct {
	name        string
	settings    Settings
	retryBudget int
	backends    []Backend
}

// NewModelUnit composes backends in priority order
func NewModelUnit(name string, settings Settings, retryBudget int, backends ...Backend) *ModelUnit {
	return &ModelUnit{name: name, settings: settings, retryBudget: retryBudget, backends: backends}
}

// Name returns the agent name the unit was built from
func (u *ModelUnit) Name() string { return u.name }

// Settings returns the primary agent's configured sampling settings
func (u *ModelUnit) Settings() Settings { return u.settings }

// RetryBudget is how many rejected candidates the agent may regenerate
func (u *ModelUnit) RetryBudget() int { return u.retryBudget }

// Backends returns the names of the chained backends, primary first
func (u *ModelUnit) Backends() []string {
	names := make([]string, len(u.backends))
	for i, b := range u.backends {
		names[i] = b.Name()
	}
	return names
}

// Generate tries each backend in order and returns the first success.
func (u *ModelUnit) Generate(ctx context.Context, prompt string, s Settings) (*Response, error) {
	var errs []error
	for _, b := range u.backends {
		resp, err := b.Generate(ctx, prompt, s)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("model unit %s has no backends", u.name)
	}
	return nil, fmt.Errorf("model unit %s: %w", u.name, errors.Join(errs...))
}

// Ask calls Generate with the unit's own settings, overriding temperature
// when temperature is not negative.
func (u *ModelUnit) Ask(ctx context.Context, prompt string, temperature float64) (*Response, error) {
	s := u.settings
	if temperature >= 0 {
		s.Temperature = temperature
	}
	return u.Generate(ctx, prompt, s)
}

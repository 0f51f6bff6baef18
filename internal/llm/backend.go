package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyResponse is returned when a backend answers with no content.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrCircuitOpen is returned when a backend's breaker rejects the call.
	ErrCircuitOpen = errors.New("backend circuit is open")
	// ErrMissingCredentials is returned when a provider's API key is not set.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Settings are per-call sampling parameters
type Settings struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	System      string
}

// Usage is the token accounting of one call, when the provider reports it
type Usage struct {
	TokensIn  int `json:"tokens_in"`
	TokensOut int `json:"tokens_out"`
}

// Response is the structured result of a generation call
type Response struct {
	Text     string        `json:"text"`
	Provider Provider      `json:"provider"`
	Model    string        `json:"model"`
	Agent    string        `json:"agent"`
	Usage    Usage         `json:"usage"`
	Latency  time.Duration `json:"latency"`
}

// Backend is one model provider client
type Backend interface {
	Generate(ctx context.Context, prompt string, s Settings) (*Response, error)
	Name() string
}

package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/axiom/sqlagent/internal/config"
)

// langchainBackend adapts a langchaingo model to Backend
type langchainBackend struct {
	provider Provider
	model    string
	llm      llms.Model
}

func (b *langchainBackend) Name() string {
	return string(b.provider) + "/" + b.model
}

func (b *langchainBackend) Generate(ctx context.Context, prompt string, s Settings) (*Response, error) {
	var msgs []llms.MessageContent
	if s.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, s.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{llms.WithTemperature(s.Temperature)}
	if s.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.MaxTokens))
	}

	resp, err := b.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", b.Name(), err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("%s: %w", b.Name(), ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	return &Response{
		Text:     choice.Content,
		Provider: b.provider,
		Model:    b.model,
		Usage: Usage{
			TokensIn:  intInfo(choice.GenerationInfo, "PromptTokens", "InputTokens", "prompt_eval_count"),
			TokensOut: intInfo(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "eval_count"),
		},
	}, nil
}

// intInfo reads the first integer-valued key present in a provider's
// generation info map.
func intInfo(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func newOpenAI(_ context.Context, cfg config.AgentConfig, apiKey string) (Backend, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &langchainBackend{provider: ProviderOpenAI, model: cfg.Model, llm: m}, nil
}

func newAnthropic(_ context.Context, cfg config.AgentConfig, apiKey string) (Backend, error) {
	opts := []anthropic.Option{anthropic.WithToken(apiKey), anthropic.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	m, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Anthropic client: %w", err)
	}
	return &langchainBackend{provider: ProviderAnthropic, model: cfg.Model, llm: m}, nil
}

func newOllama(_ context.Context, cfg config.AgentConfig, _ string) (Backend, error) {
	server := cfg.BaseURL
	if server == "" {
		server = os.Getenv("OLLAMA_HOST")
	}
	if server == "" {
		server = "http://localhost:11434"
	}
	m, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(server))
	if err != nil {
		return nil, fmt.Errorf("creating Ollama client: %w", err)
	}
	return &langchainBackend{provider: ProviderOllama, model: cfg.Model, llm: m}, nil
}

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/axiom/sqlagent/internal/config"
)

// geminiBackend calls the Gemini API through the genai SDK
type geminiBackend struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, cfg config.AgentConfig, apiKey string) (Backend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &geminiBackend{client: client, model: cfg.Model}, nil
}

func (b *geminiBackend) Name() string {
	return string(ProviderGemini) + "/" + b.model
}

func (b *geminiBackend) Generate(ctx context.Context, prompt string, s Settings) (*Response, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.Temperature)),
	}
	if s.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(s.MaxTokens)
	}
	if s.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(s.System, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), gc)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", b.Name(), err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%s: %w", b.Name(), ErrEmptyResponse)
	}
	out := &Response{Text: text, Provider: ProviderGemini, Model: b.model}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			TokensIn:  int(resp.UsageMetadata.PromptTokenCount),
			TokensOut: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

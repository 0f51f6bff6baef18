// Package llm builds the model-backed generation units used by agents:
// provider resolution, backend clients, and ordered fallback chains.
package llm

import (
	"strings"
)

// Provider is a closed set of model provider kinds
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
)

// DefaultProvider is used when a name cannot be resolved.
const DefaultProvider = ProviderOllama

// ValidProviders lists every provider kind.
var ValidProviders = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama}

// ParseProvider matches s against the provider vocabulary.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
		return p, true
	case "google":
		return ProviderGemini, true
	case "claude":
		return ProviderAnthropic, true
	}
	return "", false
}

var familyPrefixes = []struct {
	prefix   string
	provider Provider
}{
	{"gpt-", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"chatgpt", ProviderOpenAI},
	{"claude-", ProviderAnthropic},
	{"gemini-", ProviderGemini},
	{"llama", ProviderOllama},
	{"mistral", ProviderOllama},
	{"mixtral", ProviderOllama},
	{"qwen", ProviderOllama},
	{"phi", ProviderOllama},
	{"gemma", ProviderOllama},
	{"granite", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"codellama", ProviderOllama},
	{"sqlcoder", ProviderOllama},
}

// InferProvider guesses the provider from a model family name. It returns
// false when the name matches no known family.
func InferProvider(model string) (Provider, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, f := range familyPrefixes {
		if strings.HasPrefix(m, f.prefix) {
			return f.provider, true
		}
	}
	return "", false
}

// Resolve picks the provider for an agent: the explicit field when valid,
// else the inferred family, else DefaultProvider.
func Resolve(explicit, model string) Provider {
	if p, ok := ParseProvider(explicit); ok {
		return p
	}
	if p, ok := InferProvider(model); ok {
		return p
	}
	return DefaultProvider
}

package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/telemetry"
)

// Constructor instantiates a backend for one agent configuration
type Constructor func(ctx context.Context, cfg config.AgentConfig, apiKey string) (Backend, error)

// defaultKeyEnv names the API key variable per provider; empty means no key.
var defaultKeyEnv = map[Provider]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderOllama:    "",
}

// Factory builds ModelUnits from agent configurations. Circuit breakers are
// kept per backend across builds so that repeated runs share failure state.
type Factory struct {
	logger       *zap.Logger
	constructors map[Provider]Constructor
	lookupEnv    func(string) (string, bool)
	hook         UsageHook

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewFactory creates a factory with the built-in provider registry
func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{
		logger: logger,
		constructors: map[Provider]Constructor{
			ProviderOpenAI:    newOpenAI,
			ProviderAnthropic: newAnthropic,
			ProviderGemini:    newGemini,
			ProviderOllama:    newOllama,
		},
		lookupEnv: os.LookupEnv,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Register replaces the constructor for a provider.
func (f *Factory) Register(p Provider, c Constructor) {
	f.constructors[p] = c
}

// SetLookupEnv replaces the environment lookup used for API keys.
func (f *Factory) SetLookupEnv(fn func(string) (string, bool)) {
	f.lookupEnv = fn
}

// OnUsage installs a hook that receives every finished backend call.
func (f *Factory) OnUsage(h UsageHook) {
	f.hook = h
}

// BuildModelUnit composes the agent's backend with an optional fallback.
// When fallback is nil the agent's own fallback entry is used. It returns
// nil when neither backend can be built; callers treat that as capability
// unavailable.
func (f *Factory) BuildModelUnit(ctx context.Context, agent config.AgentConfig, fallback *config.AgentConfig) *ModelUnit {
	if fallback == nil {
		fallback = agent.Fallback
	}
	var backends []Backend
	if b, err := f.build(ctx, agent); err != nil {
		f.logger.Warn("Primary backend unavailable",
			zap.String("agent", agent.Name),
			zap.String("model", agent.Model),
			zap.Error(err),
		)
	} else {
		backends = append(backends, b)
	}
	if fallback != nil {
		if b, err := f.build(ctx, *fallback); err != nil {
			f.logger.Warn("Fallback backend unavailable",
				zap.String("agent", agent.Name),
				zap.String("model", fallback.Model),
				zap.Error(err),
			)
		} else {
			backends = append(backends, b)
		}
	}
	if len(backends) == 0 {
		return nil
	}
	settings := Settings{
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
		Timeout:     agent.Timeout,
	}
	return NewModelUnit(agent.Name, settings, agent.Retries(), backends...)
}

func (f *Factory) build(ctx context.Context, cfg config.AgentConfig) (Backend, error) {
	provider := Resolve(cfg.Provider, cfg.Model)
	construct, ok := f.constructors[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %q (valid: %v)", provider, ValidProviders)
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultKeyEnv[provider]
	}
	var apiKey string
	if keyEnv != "" {
		key, ok := f.lookupEnv(keyEnv)
		if !ok || key == "" {
			return nil, fmt.Errorf("%s required for %s: %w", keyEnv, provider, ErrMissingCredentials)
		}
		apiKey = key
	}

	inner, err := construct(ctx, cfg, apiKey)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &guarded{
		inner:    inner,
		agent:    cfg.Name,
		provider: provider,
		model:    cfg.Model,
		defaults: Settings{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens, Timeout: cfg.Timeout},
		breaker:  f.breaker(inner.Name()),
		limiter:  limiter,
		hook:     f.hook,
	}, nil
}

func (f *Factory) breaker(name string) *CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker()
	cb.OnStateChange = func(from, to CircuitState) {
		telemetry.BreakerState.WithLabelValues(name).Set(float64(to))
		f.logger.Warn("Backend circuit state changed",
			zap.String("backend", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	f.breakers[name] = cb
	return cb
}

// Breaker returns the circuit breaker of a backend by name, if one exists.
func (f *Factory) Breaker(name string) (*CircuitBreaker, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[name]
	return cb, ok
}

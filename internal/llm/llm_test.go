package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
)

type stubBackend struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Generate(ctx context.Context, _ string, _ Settings) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: s.text, Model: s.name}, nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		explicit, model string
		want            Provider
	}{
		{"", "gpt-4o-mini", ProviderOpenAI},
		{"", "o3-mini", ProviderOpenAI},
		{"", "claude-3-5-sonnet-latest", ProviderAnthropic},
		{"", "gemini-2.0-flash", ProviderGemini},
		{"", "llama3.1:8b", ProviderOllama},
		{"", "library/qwen2.5-coder", ProviderOllama},
		{"anthropic", "gpt-4o", ProviderAnthropic},
		{"Google", "whatever", ProviderGemini},
		{"bogus", "totally-unknown-model", DefaultProvider},
		{"", "", DefaultProvider},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.explicit, tt.model), "%s/%s", tt.explicit, tt.model)
	}
}

func TestModelUnitFallsThrough(t *testing.T) {
	primary := &stubBackend{name: "primary", err: errors.New("503")}
	fallback := &stubBackend{name: "fallback", text: "SELECT 1"}
	unit := NewModelUnit("agent", Settings{}, 1, primary, fallback)

	resp, err := unit.Generate(context.Background(), "q", Settings{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, []string{"primary", "fallback"}, unit.Backends())
}

func TestModelUnitFirstSuccessWins(t *testing.T) {
	primary := &stubBackend{name: "primary", text: "a"}
	fallback := &stubBackend{name: "fallback", text: "b"}
	unit := NewModelUnit("agent", Settings{}, 1, primary, fallback)

	resp, err := unit.Generate(context.Background(), "q", Settings{})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Text)
	assert.Zero(t, fallback.calls)
}

func TestModelUnitJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("first"), errors.New("second")
	unit := NewModelUnit("agent", Settings{}, 1, &stubBackend{name: "a", err: e1}, &stubBackend{name: "b", err: e2})
	_, err := unit.Generate(context.Background(), "q", Settings{})
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
}

func newTestFactory(env map[string]string) *Factory {
	f := NewFactory(zap.NewNop())
	f.SetLookupEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	for _, p := range ValidProviders {
		p := p
		f.Register(p, func(_ context.Context, cfg config.AgentConfig, _ string) (Backend, error) {
			return &stubBackend{name: string(p) + "/" + cfg.Model, text: "ok"}, nil
		})
	}
	return f
}

func TestBuildModelUnitMissingCredentials(t *testing.T) {
	f := newTestFactory(nil)
	unit := f.BuildModelUnit(context.Background(), config.AgentConfig{Name: "a", Model: "gpt-4o"}, nil)
	assert.Nil(t, unit)
}

func TestBuildModelUnitUsesFallbackWhenPrimaryUnavailable(t *testing.T) {
	f := newTestFactory(nil)
	budget := 2
	unit := f.BuildModelUnit(context.Background(),
		config.AgentConfig{Name: "a", Model: "gpt-4o", RetryBudget: &budget},
		&config.AgentConfig{Name: "local", Model: "llama3.1"},
	)
	require.NotNil(t, unit)
	assert.Equal(t, []string{"ollama/llama3.1"}, unit.Backends())
	assert.Equal(t, 2, unit.RetryBudget())
}

func TestBuildModelUnitChainsPrimaryAndFallback(t *testing.T) {
	f := newTestFactory(map[string]string{"MY_KEY": "sk-test"})
	unit := f.BuildModelUnit(context.Background(), config.AgentConfig{
		Name:      "a",
		Model:     "claude-3-5-haiku-latest",
		APIKeyEnv: "MY_KEY",
		Fallback:  &config.AgentConfig{Name: "local", Model: "qwen2.5"},
	}, nil)
	require.NotNil(t, unit)
	assert.Equal(t, []string{"anthropic/claude-3-5-haiku-latest", "ollama/qwen2.5"}, unit.Backends())
}

func TestGuardedReportsUsageAndOpensBreaker(t *testing.T) {
	f := newTestFactory(nil)
	var records []CallRecord
	f.OnUsage(func(_ context.Context, rec CallRecord) { records = append(records, rec) })
	f.Register(ProviderOllama, func(_ context.Context, cfg config.AgentConfig, _ string) (Backend, error) {
		return &stubBackend{name: "ollama/" + cfg.Model, err: errors.New("connection refused")}, nil
	})

	unit := f.BuildModelUnit(context.Background(), config.AgentConfig{Name: "a", Model: "llama3.1", Timeout: time.Second}, nil)
	require.NotNil(t, unit)
	for i := 0; i < 5; i++ {
		_, err := unit.Generate(context.Background(), "q", Settings{})
		require.Error(t, err)
	}
	_, err := unit.Generate(context.Background(), "q", Settings{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Len(t, records, 5)
	assert.Equal(t, "a", records[0].Agent)

	cb, ok := f.Breaker("ollama/llama3.1")
	require.True(t, ok)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(1, 1, time.Minute)
	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCancelledCallDoesNotTripBreaker(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(1, 1, time.Minute)
	g := &guarded{
		inner:    &stubBackend{name: "slow", err: context.Canceled},
		agent:    "a",
		provider: ProviderOllama,
		model:    "slow",
		breaker:  cb,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, "q", Settings{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

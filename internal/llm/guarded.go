package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/axiom/sqlagent/internal/telemetry"
)

// CallRecord describes one finished backend call, for usage accounting
type CallRecord struct {
	Agent    string
	Provider Provider
	Model    string
	Usage    Usage
	Latency  time.Duration
	Err      error
}

// UsageHook receives every finished backend call
type UsageHook func(ctx context.Context, rec CallRecord)

// guarded wraps a backend with a circuit breaker, a rate limiter, a call
// timeout and usage reporting.
type guarded struct {
	inner    Backend
	agent    string
	provider Provider
	model    string
	defaults Settings
	breaker  *CircuitBreaker
	limiter  *rate.Limiter
	hook     UsageHook
}

func (g *guarded) Name() string {
	return g.inner.Name()
}

func (g *guarded) Generate(ctx context.Context, prompt string, s Settings) (*Response, error) {
	s = g.merge(s)
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%s: %w", g.Name(), ErrCircuitOpen)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit: %w", g.Name(), err)
		}
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.inner.Generate(callCtx, prompt, s)
	latency := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case ctx.Err() != nil:
		// the caller gave up; not the backend's fault
		outcome = "cancelled"
	default:
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		g.breaker.RecordFailure()
	}
	telemetry.ModelLatency.WithLabelValues(string(g.provider), g.model, outcome).Observe(latency.Seconds())

	rec := CallRecord{Agent: g.agent, Provider: g.provider, Model: g.model, Latency: latency, Err: err}
	if resp != nil {
		rec.Usage = resp.Usage
		resp.Agent = g.agent
		resp.Latency = latency
	}
	if g.hook != nil {
		g.hook(ctx, rec)
	}
	return resp, err
}

// merge fills zero fields of s from the agent's configured defaults.
func (g *guarded) merge(s Settings) Settings {
	if s.MaxTokens == 0 {
		s.MaxTokens = g.defaults.MaxTokens
	}
	if s.Timeout == 0 {
		s.Timeout = g.defaults.Timeout
	}
	return s
}

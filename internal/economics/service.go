// Package economics accounts for model usage: every backend call becomes a
// generation log row and feeds per-agent running totals.
package economics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/telemetry"
)

const insertTimeout = 2 * time.Second

// UsageStore persists generation logs; *database.UsageStore implements it.
type UsageStore interface {
	Insert(ctx context.Context, l models.GenerationLog) error
}

// AgentUsage is the running total of one agent's calls
type AgentUsage struct {
	Agent     string        `json:"agent"`
	Calls     int           `json:"calls"`
	Failures  int           `json:"failures"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	Latency   time.Duration `json:"latency_ms"`
}

// Service handles usage tracking
type Service struct {
	store  UsageStore
	logger *zap.Logger

	mu     sync.Mutex
	totals map[string]*AgentUsage
}

// NewService creates a usage service. store may be nil to keep totals only.
func NewService(store UsageStore, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		totals: make(map[string]*AgentUsage),
	}
}

// RecordUsage logs one finished backend call. It has the shape of
// llm.UsageHook and is installed on the model factory.
func (s *Service) RecordUsage(ctx context.Context, rec llm.CallRecord) {
	s.mu.Lock()
	u, ok := s.totals[rec.Agent]
	if !ok {
		u = &AgentUsage{Agent: rec.Agent}
		s.totals[rec.Agent] = u
	}
	u.Calls++
	if rec.Err != nil {
		u.Failures++
	}
	u.TokensIn += rec.Usage.TokensIn
	u.TokensOut += rec.Usage.TokensOut
	u.Latency += rec.Latency
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	// the call's own context may already be cancelled by a sibling decision
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
	defer cancel()
	err := s.store.Insert(insertCtx, models.GenerationLog{
		ID:        uuid.New(),
		RunID:     telemetry.RunID(ctx),
		Agent:     rec.Agent,
		Provider:  string(rec.Provider),
		ModelID:   rec.Model,
		TokensIn:  rec.Usage.TokensIn,
		TokensOut: rec.Usage.TokensOut,
		LatencyMs: rec.Latency.Milliseconds(),
		Failed:    rec.Err != nil,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("failed to log model usage",
			zap.String("agent", rec.Agent),
			zap.Error(err),
		)
	}
}

// Totals returns a snapshot of per-agent usage ordered by agent name.
func (s *Service) Totals() []AgentUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentUsage, 0, len(s.totals))
	for _, u := range s.totals {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

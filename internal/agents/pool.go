// Package agents organises model units into role/tier pools.
package agents

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/models"
)

// ErrFrozen is returned when a pool is modified after population.
var ErrFrozen = errors.New("agent pool is frozen")

// Kind names a single-purpose auxiliary agent
type Kind string

const (
	KindEvaluator  Kind = "evaluator"
	KindSelector   Kind = "selector"
	KindSupervisor Kind = "supervisor"
	KindReducer    Kind = "reducer"
)

type slot struct {
	role models.Role
	tier models.Tier
}

// Pool maps (role, tier) to an ordered list of model units. It is filled
// once and then frozen; after Freeze all accessors are read-only.
type Pool struct {
	mu        sync.RWMutex
	units     map[slot][]*llm.ModelUnit
	auxiliary map[Kind]*llm.ModelUnit
	frozen    bool
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		units:     make(map[slot][]*llm.ModelUnit),
		auxiliary: make(map[Kind]*llm.ModelUnit),
	}
}

// Add appends unit to the (role, tier) slot.
func (p *Pool) Add(unit *llm.ModelUnit, role models.Role, tier models.Tier) error {
	if unit == nil {
		return fmt.Errorf("adding nil unit to %s/%s", role, tier)
	}
	if !role.Valid() || !tier.Valid() {
		return fmt.Errorf("invalid slot %s/%s", role, tier)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrFrozen
	}
	k := slot{role, tier}
	p.units[k] = append(p.units[k], unit)
	return nil
}

// SetAuxiliary installs the auxiliary agent of a kind.
func (p *Pool) SetAuxiliary(kind Kind, unit *llm.ModelUnit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrFrozen
	}
	p.auxiliary[kind] = unit
	return nil
}

// Freeze makes the pool read-only.
func (p *Pool) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// ByTier returns a copy of the units in a slot, in insertion order.
func (p *Pool) ByTier(role models.Role, tier models.Tier) []*llm.ModelUnit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*llm.ModelUnit(nil), p.units[slot{role, tier}]...)
}

// Size returns the number of units in a slot.
func (p *Pool) Size(role models.Role, tier models.Tier) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.units[slot{role, tier}])
}

// Random picks a unit of the slot uniformly.
func (p *Pool) Random(role models.Role, tier models.Tier) (*llm.ModelUnit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	units := p.units[slot{role, tier}]
	if len(units) == 0 {
		return nil, false
	}
	return units[rand.IntN(len(units))], true
}

// At returns the unit at index in the slot.
func (p *Pool) At(role models.Role, tier models.Tier, index int) (*llm.ModelUnit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	units := p.units[slot{role, tier}]
	if index < 0 || index >= len(units) {
		return nil, false
	}
	return units[index], true
}

// Auxiliary returns the auxiliary agent of a kind, or nil.
func (p *Pool) Auxiliary(kind Kind) *llm.ModelUnit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.auxiliary[kind]
}

// Builder constructs model units; *llm.Factory implements it.
type Builder interface {
	BuildModelUnit(ctx context.Context, agent config.AgentConfig, fallback *config.AgentConfig) *llm.ModelUnit
}

// Populate builds every configured agent into a frozen pool. An agent that
// cannot be built is logged and its slot stays short; population goes on.
func Populate(ctx context.Context, ws *config.Workspace, b Builder, logger *zap.Logger) *Pool {
	p := NewPool()
	for _, a := range ws.Agents {
		unit := b.BuildModelUnit(ctx, a, nil)
		if unit == nil {
			logger.Warn("Agent unavailable, slot left short",
				zap.String("agent", a.Name),
				zap.String("role", string(a.Role)),
				zap.String("tier", string(a.Tier)),
			)
			continue
		}
		if err := p.Add(unit, a.Role, a.Tier); err != nil {
			logger.Warn("Failed to add agent to pool", zap.String("agent", a.Name), zap.Error(err))
		}
	}

	aux := map[Kind]*config.AgentConfig{
		KindEvaluator:  ws.Auxiliary.Evaluator,
		KindSelector:   ws.Auxiliary.Selector,
		KindSupervisor: ws.Auxiliary.Supervisor,
		KindReducer:    ws.Auxiliary.Reducer,
	}
	for kind, cfg := range aux {
		if cfg == nil {
			continue
		}
		unit := b.BuildModelUnit(ctx, *cfg, nil)
		if unit == nil {
			logger.Warn("Auxiliary agent unavailable", zap.String("kind", string(kind)), zap.String("agent", cfg.Name))
			continue
		}
		_ = p.SetAuxiliary(kind, unit)
	}
	p.Freeze()

	for _, tier := range models.Tiers() {
		logger.Debug("Agent pool populated",
			zap.String("tier", string(tier)),
			zap.Int("sql_agents", p.Size(models.RoleSQL, tier)),
			zap.Int("test_agents", p.Size(models.RoleTest, tier)),
		)
	}
	return p
}

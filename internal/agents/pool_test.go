package agents

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/llm/llmtest"
	"github.com/axiom/sqlagent/internal/models"
)

// fakeBuilder fails for every agent whose name is in missing.
type fakeBuilder struct {
	missing map[string]bool
}

func (f fakeBuilder) BuildModelUnit(_ context.Context, a config.AgentConfig, _ *config.AgentConfig) *llm.ModelUnit {
	if f.missing[a.Name] {
		return nil
	}
	return llmtest.Unit(a.Name, llmtest.Static(a.Name, "SELECT 1"))
}

func TestPopulateSkipsUnavailableAgents(t *testing.T) {
	ws := &config.Workspace{
		Agents: []config.AgentConfig{
			{Name: "b1", Role: models.RoleSQL, Tier: models.TierBasic},
			{Name: "b2", Role: models.RoleSQL, Tier: models.TierBasic},
			{Name: "a1", Role: models.RoleSQL, Tier: models.TierAdvanced},
			{Name: "t1", Role: models.RoleTest, Tier: models.TierBasic},
		},
		Auxiliary: config.AuxiliaryConfig{
			Evaluator:  &config.AgentConfig{Name: "eval"},
			Supervisor: &config.AgentConfig{Name: "super"},
		},
	}
	p := Populate(context.Background(), ws, fakeBuilder{missing: map[string]bool{"a1": true, "super": true}}, zap.NewNop())

	assert.Equal(t, 2, p.Size(models.RoleSQL, models.TierBasic))
	assert.Zero(t, p.Size(models.RoleSQL, models.TierAdvanced))
	assert.Equal(t, 1, p.Size(models.RoleTest, models.TierBasic))
	require.NotNil(t, p.Auxiliary(KindEvaluator))
	assert.Nil(t, p.Auxiliary(KindSupervisor))
	assert.Nil(t, p.Auxiliary(KindSelector))

	u, ok := p.At(models.RoleSQL, models.TierBasic, 1)
	require.True(t, ok)
	assert.Equal(t, "b2", u.Name())
	_, ok = p.At(models.RoleSQL, models.TierBasic, 2)
	assert.False(t, ok)
}

func TestFrozenPoolRejectsWrites(t *testing.T) {
	p := NewPool()
	unit := llmtest.Unit("x", llmtest.Static("x", ""))
	require.NoError(t, p.Add(unit, models.RoleSQL, models.TierExpert))
	p.Freeze()
	assert.ErrorIs(t, p.Add(unit, models.RoleSQL, models.TierExpert), ErrFrozen)
	assert.ErrorIs(t, p.SetAuxiliary(KindReducer, unit), ErrFrozen)
	assert.Error(t, NewPool().Add(nil, models.RoleSQL, models.TierBasic))
	assert.Error(t, NewPool().Add(unit, "writer", models.TierBasic))
}

func TestRandomOnEmptySlot(t *testing.T) {
	p := NewPool()
	_, ok := p.Random(models.RoleTest, models.TierExpert)
	assert.False(t, ok)
}

func TestConcurrentReads(t *testing.T) {
	p := NewPool()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, p.Add(llmtest.Unit(name, llmtest.Static(name, "")), models.RoleSQL, models.TierBasic))
	}
	p.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, ok := p.Random(models.RoleSQL, models.TierBasic)
			assert.True(t, ok)
			assert.Contains(t, []string{"a", "b", "c"}, u.Name())
			assert.Len(t, p.ByTier(models.RoleSQL, models.TierBasic), 3)
		}()
	}
	wg.Wait()
}

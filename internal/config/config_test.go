package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom/sqlagent/internal/models"
)

const sampleWorkspace = `
id: sales
dialect: sqlserver
schema_file: schema.sql
evidence:
  - revenue is the sum of order totals
candidates_per_tier: 2
agents:
  - name: basic-sql
    tier: basic
    model: llama3.1
    temperature: 0.2
  - name: basic-test
    tier: basic
    role: test
    model: gpt-4o-mini
    api_key_env: OPENAI_API_KEY
    fallback:
      name: basic-test-local
      model: qwen2.5
auxiliary:
  evaluator:
    name: evaluator
    model: claude-3-5-haiku-latest
`

func writeWorkspace(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeWorkspace(t, dir, "schema.sql", "CREATE TABLE orders (id int);")
	path := writeWorkspace(t, dir, "sqlagent.yaml", sampleWorkspace)

	ws, used, err := LoadWorkspace(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, "sales", ws.ID)
	assert.Equal(t, "sqlserver", ws.Dialect)
	assert.Equal(t, "CREATE TABLE orders (id int);", ws.SchemaText)
	assert.Equal(t, 2, ws.CandidatesPerTier)
	assert.Equal(t, 5, ws.TestsPerCandidate)
	assert.InDelta(t, 0.9, ws.AcceptanceThreshold, 1e-9)
	assert.Equal(t, 1, ws.StrictFailureThreshold)
	assert.Equal(t, 7*time.Second, ws.EvidenceTimeout)
	assert.InDelta(t, 1.5, ws.Relevance.K1, 1e-9)

	sql := ws.AgentsFor(models.RoleSQL, models.TierBasic)
	require.Len(t, sql, 1)
	assert.Equal(t, DefaultRetryBudget, sql[0].Retries())
	assert.Equal(t, 60*time.Second, sql[0].Timeout)

	tests := ws.AgentsFor(models.RoleTest, models.TierBasic)
	require.Len(t, tests, 1)
	require.NotNil(t, tests[0].Fallback)
	assert.Equal(t, "qwen2.5", tests[0].Fallback.Model)
	require.NotNil(t, ws.Auxiliary.Evaluator)
	assert.Nil(t, ws.Auxiliary.Supervisor)
}

func TestLoadWorkspaceAuxiliaryDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkspace(t, dir, "aux.yaml", `
id: aux
agents:
  - name: basic-sql
    model: llama3.1
    fallback:
      name: basic-sql-local
      model: qwen2.5
auxiliary:
  evaluator:
    name: evaluator
    model: llama3.1
  supervisor:
    name: supervisor
    model: llama3.1
    timeout: 5s
`)
	ws, _, err := LoadWorkspace(path)
	require.NoError(t, err)

	require.NotNil(t, ws.Auxiliary.Evaluator)
	assert.Equal(t, time.Minute, ws.Auxiliary.Evaluator.Timeout)
	assert.Equal(t, DefaultRetryBudget, ws.Auxiliary.Evaluator.Retries())
	assert.Equal(t, 5*time.Second, ws.Auxiliary.Supervisor.Timeout)
	require.NotNil(t, ws.Agents[0].Fallback)
	assert.Equal(t, time.Minute, ws.Agents[0].Fallback.Timeout)
}

func TestLoadWorkspaceZeroRetryBudget(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkspace(t, dir, "noretry.yaml", `
id: noretry
agents:
  - name: strict-sql
    model: llama3.1
    retry_budget: 0
  - name: default-sql
    model: llama3.1
`)
	ws, _, err := LoadWorkspace(path)
	require.NoError(t, err)
	require.Len(t, ws.Agents, 2)
	require.NotNil(t, ws.Agents[0].RetryBudget)
	assert.Zero(t, ws.Agents[0].Retries())
	assert.Equal(t, DefaultRetryBudget, ws.Agents[1].Retries())
}

func TestLoadWorkspaceEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeWorkspace(t, dir, "schema.sql", "")
	path := writeWorkspace(t, dir, "sqlagent.yaml", sampleWorkspace)
	t.Setenv("SQLAGENT_ACCEPTANCE_THRESHOLD", "0.8")

	ws, _, err := LoadWorkspace(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, ws.AcceptanceThreshold, 1e-9)
}

func TestLoadWorkspaceRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkspace(t, dir, "bad.yaml", `
id: bad
acceptance_threshold: 1.5
agents:
  - name: a
    model: llama3.1
`)
	_, _, err := LoadWorkspace(path)
	assert.Error(t, err)

	path = writeWorkspace(t, dir, "noagents.yaml", "id: empty\n")
	_, _, err = LoadWorkspace(path)
	assert.ErrorContains(t, err, "no sql agents")
}

func TestFileSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	writeWorkspace(t, dir, "schema.sql", "")
	writeWorkspace(t, dir, "sales.yaml", sampleWorkspace)

	src := FileSource{Path: dir}
	ws, err := src.Workspace(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", ws.ID)

	_, err = src.Workspace(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("REQUESTS_PER_MINUTE", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30, cfg.RequestsPerMinute)
	assert.False(t, cfg.IsProduction())
}

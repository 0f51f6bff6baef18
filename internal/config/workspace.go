package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/relevance"
)

const maxWalkDepth = 25

// Per-call defaults for agents that leave them unset.
const (
	DefaultAgentTimeout = 60 * time.Second
	DefaultRetryBudget  = 3
)

// AgentConfig describes one generation agent. It is immutable once loaded.
type AgentConfig struct {
	Name        string        `mapstructure:"name" yaml:"name" validate:"required"`
	Tier        models.Tier   `mapstructure:"tier" yaml:"tier,omitempty" validate:"omitempty,oneof=basic advanced expert"`
	Role        models.Role   `mapstructure:"role" yaml:"role,omitempty" validate:"omitempty,oneof=sql test"`
	Provider    string        `mapstructure:"provider" yaml:"provider,omitempty"`
	Model       string        `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIKeyEnv   string        `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RetryBudget is nil when unset. An explicit zero disables retries.
	RetryBudget *int `mapstructure:"retry_budget" yaml:"retry_budget,omitempty" validate:"omitempty,gte=0,lte=10"`
	// RequestsPerSecond limits calls to this agent's backend; zero is unlimited.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second,omitempty" validate:"gte=0"`

	Fallback *AgentConfig `mapstructure:"fallback" yaml:"fallback,omitempty"`
}

// Retries returns the agent's retry budget, DefaultRetryBudget when unset.
func (a AgentConfig) Retries() int {
	if a.RetryBudget == nil {
		return DefaultRetryBudget
	}
	return *a.RetryBudget
}

func (a *AgentConfig) applyCallDefaults() {
	if a.Timeout == 0 {
		a.Timeout = DefaultAgentTimeout
	}
	if a.RetryBudget == nil {
		budget := DefaultRetryBudget
		a.RetryBudget = &budget
	}
	if a.Fallback != nil {
		a.Fallback.applyCallDefaults()
	}
}

// AuxiliaryConfig holds the single-purpose agents of the evaluation engine
type AuxiliaryConfig struct {
	Evaluator  *AgentConfig `mapstructure:"evaluator" yaml:"evaluator,omitempty"`
	Selector   *AgentConfig `mapstructure:"selector" yaml:"selector,omitempty"`
	Supervisor *AgentConfig `mapstructure:"supervisor" yaml:"supervisor,omitempty"`
	Reducer    *AgentConfig `mapstructure:"reducer" yaml:"reducer,omitempty"`
}

// Workspace is the per-run configuration supplied by the configuration source
type Workspace struct {
	ID             string `mapstructure:"id" yaml:"id" validate:"required"`
	Dialect        string `mapstructure:"dialect" yaml:"dialect" validate:"required"`
	DatabaseURL    string `mapstructure:"database_url" yaml:"database_url,omitempty"`
	SchemaLanguage string `mapstructure:"schema_language" yaml:"schema_language,omitempty"`
	SchemaText     string `mapstructure:"schema_text" yaml:"schema_text,omitempty"`
	SchemaFile     string `mapstructure:"schema_file" yaml:"schema_file,omitempty"`

	Evidence []string `mapstructure:"evidence" yaml:"evidence,omitempty"`

	CandidatesPerTier      int           `mapstructure:"candidates_per_tier" yaml:"candidates_per_tier" validate:"min=1,max=16"`
	TestsPerCandidate      int           `mapstructure:"tests_per_candidate" yaml:"tests_per_candidate" validate:"min=1,max=50"`
	AcceptanceThreshold    float64       `mapstructure:"acceptance_threshold" yaml:"acceptance_threshold" validate:"gt=0,lte=1"`
	BorderlineBand         float64       `mapstructure:"borderline_band" yaml:"borderline_band" validate:"gte=0,lte=1"`
	StrictFailureThreshold int           `mapstructure:"strict_failure_threshold" yaml:"strict_failure_threshold" validate:"min=1"`
	EvidenceTimeout        time.Duration `mapstructure:"evidence_timeout" yaml:"evidence_timeout"`
	TreatEmptyAsFailure    bool          `mapstructure:"treat_empty_as_failure" yaml:"treat_empty_as_failure"`
	ReduceTests            bool          `mapstructure:"reduce_tests" yaml:"reduce_tests"`
	ShortCircuitGold       bool          `mapstructure:"short_circuit_gold" yaml:"short_circuit_gold"`

	Agents    []AgentConfig    `mapstructure:"agents" yaml:"agents" validate:"dive"`
	Auxiliary AuxiliaryConfig  `mapstructure:"auxiliary" yaml:"auxiliary"`
	Relevance relevance.Config `mapstructure:"relevance" yaml:"relevance"`
}

// AgentsFor returns the agents configured for role and tier.
func (w *Workspace) AgentsFor(role models.Role, tier models.Tier) []AgentConfig {
	var out []AgentConfig
	for _, a := range w.Agents {
		if a.Role == role && a.Tier == tier {
			out = append(out, a)
		}
	}
	return out
}

// WorkspaceSource supplies workspace configuration, fetched once per run
type WorkspaceSource interface {
	Workspace(ctx context.Context, id string) (*Workspace, error)
}

// ErrWorkspaceNotFound is returned when no configuration exists for an ID.
var ErrWorkspaceNotFound = errors.New("workspace not found")

var validate = validator.New()

// LoadWorkspace discovers and loads a workspace file with precedence
// env > config file > defaults. It returns the path that was read.
func LoadWorkspace(explicitPath string) (*Workspace, string, error) {
	v := viper.New()
	setWorkspaceDefaults(v)

	v.SetEnvPrefix("SQLAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, path, fmt.Errorf("reading workspace config: %w", err)
		}
	}

	var ws Workspace
	if err := v.Unmarshal(&ws); err != nil {
		return nil, path, fmt.Errorf("unmarshaling workspace config: %w", err)
	}
	if ws.SchemaFile != "" && ws.SchemaText == "" {
		schemaPath := ws.SchemaFile
		if !filepath.IsAbs(schemaPath) && path != "" {
			schemaPath = filepath.Join(filepath.Dir(path), schemaPath)
		}
		b, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, path, fmt.Errorf("reading schema file: %w", err)
		}
		ws.SchemaText = string(b)
	}
	ws.applyAgentDefaults()

	if err := ws.Validate(); err != nil {
		return nil, path, err
	}
	return &ws, path, nil
}

// Validate checks field constraints and that the basic tier can generate SQL.
func (w *Workspace) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("invalid workspace config: %w", err)
	}
	if len(w.AgentsFor(models.RoleSQL, models.TierBasic))+
		len(w.AgentsFor(models.RoleSQL, models.TierAdvanced))+
		len(w.AgentsFor(models.RoleSQL, models.TierExpert)) == 0 {
		return fmt.Errorf("invalid workspace config: no sql agents configured")
	}
	return nil
}

func (w *Workspace) applyAgentDefaults() {
	for i := range w.Agents {
		a := &w.Agents[i]
		if a.Role == "" {
			a.Role = models.RoleSQL
		}
		if a.Tier == "" {
			a.Tier = models.TierBasic
		}
		a.applyCallDefaults()
	}
	aux := w.Auxiliary
	for _, a := range []*AgentConfig{aux.Evaluator, aux.Selector, aux.Supervisor, aux.Reducer} {
		if a != nil {
			a.applyCallDefaults()
		}
	}
}

func setWorkspaceDefaults(v *viper.Viper) {
	v.SetDefault("id", "default")
	v.SetDefault("dialect", "postgresql")
	v.SetDefault("schema_language", "en")
	v.SetDefault("candidates_per_tier", 3)
	v.SetDefault("tests_per_candidate", 5)
	v.SetDefault("acceptance_threshold", 0.9)
	v.SetDefault("borderline_band", 0.2)
	v.SetDefault("strict_failure_threshold", 1)
	v.SetDefault("evidence_timeout", "7s")
	v.SetDefault("treat_empty_as_failure", false)
	v.SetDefault("reduce_tests", true)
	v.SetDefault("short_circuit_gold", false)

	rc := relevance.DefaultConfig()
	v.SetDefault("relevance.k1", rc.K1)
	v.SetDefault("relevance.b", rc.B)
	v.SetDefault("relevance.bm25_weight", rc.BM25Weight)
	v.SetDefault("relevance.struct_weight", rc.StructWeight)
	v.SetDefault("relevance.morph_bm25_weight", rc.MorphBM25Weight)
	v.SetDefault("relevance.morph_struct_weight", rc.MorphStructWeight)
	v.SetDefault("relevance.irrelevant_below", rc.IrrelevantBelow)
	v.SetDefault("relevance.weak_at", rc.WeakAt)
	v.SetDefault("relevance.strict_at", rc.StrictAt)
}

// findConfigFile returns explicitPath if it exists, or walks up from the
// working directory looking for sqlagent.yaml, stopping at a .git boundary.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"sqlagent.yaml", "sqlagent.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// FileSource serves workspaces from YAML files. Path is either a single
// workspace file or a directory holding one <id>.yaml per workspace.
type FileSource struct {
	Path string
}

// Workspace implements WorkspaceSource.
func (s FileSource) Workspace(ctx context.Context, id string) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if id == "" {
			id = "default"
		}
		path = filepath.Join(path, filepath.Base(id)+".yaml")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
		}
	}
	ws, _, err := LoadWorkspace(path)
	if err != nil {
		return nil, err
	}
	if id != "" && ws.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return ws, nil
}

// StaticSource always returns the same workspace
type StaticSource struct {
	W *Workspace
}

// Workspace implements WorkspaceSource.
func (s StaticSource) Workspace(_ context.Context, id string) (*Workspace, error) {
	if s.W == nil || (id != "" && id != s.W.ID) {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return s.W, nil
}

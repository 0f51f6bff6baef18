package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier represents the capability level of a generation agent
type Tier string

const (
	TierBasic    Tier = "basic"
	TierAdvanced Tier = "advanced"
	TierExpert   Tier = "expert"
)

// Tiers returns the escalation order, weakest first
func Tiers() []Tier {
	return []Tier{TierBasic, TierAdvanced, TierExpert}
}

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierAdvanced, TierExpert:
		return true
	default:
		return false
	}
}

// Terminal reports whether there is no stronger tier to escalate to.
func (t Tier) Terminal() bool {
	return t == TierExpert
}

// Role represents what a generation agent produces
type Role string

const (
	RoleSQL  Role = "sql"
	RoleTest Role = "test"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	return r == RoleSQL || r == RoleTest
}

// Case is the outcome class of one tier's evaluation
type Case string

const (
	CaseAGold   Case = "A-GOLD"
	CaseBGold   Case = "B-GOLD"
	CaseASilver Case = "A-SILVER"
	CaseBSilver Case = "B-SILVER"
	CaseCFailed Case = "C-FAILED"
	CaseDFailed Case = "D-FAILED"
)

// Failed reports whether the case escalates (or ends the run at the last tier).
func (c Case) Failed() bool {
	return c == CaseCFailed || c == CaseDFailed
}

// Quality returns GOLD, SILVER or FAILED
func (c Case) Quality() string {
	switch c {
	case CaseAGold, CaseBGold:
		return "GOLD"
	case CaseASilver, CaseBSilver:
		return "SILVER"
	default:
		return "FAILED"
	}
}

// GenerationInput is the request for a single NL->SQL run
type GenerationInput struct {
	WorkspaceID string `json:"workspace_id"`
	Question    string `json:"question"`
}

// Result is the successful output of a run
type Result struct {
	RunID       uuid.UUID    `json:"run_id"`
	SQL         string       `json:"sql"`
	Explanation string       `json:"explanation,omitempty"`
	Case        Case         `json:"case"`
	Tier        Tier         `json:"tier"`
	Agent       string       `json:"agent"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	Certificate *Certificate `json:"certificate,omitempty"`
	Cached      bool         `json:"cached,omitempty"`
}

// Diagnostics aggregates per-tier information about a run
type Diagnostics struct {
	Tiers        []TierDiagnostics `json:"tiers"`
	RetryHistory []RetryEntry      `json:"retry_history,omitempty"`
	Duration     time.Duration     `json:"duration_ms"`
}

// TierDiagnostics describes one tier attempt
type TierDiagnostics struct {
	Tier               Tier               `json:"tier"`
	Case               Case               `json:"case"`
	Reason             string             `json:"reason,omitempty"`
	CandidatesAccepted int                `json:"candidates_accepted"`
	CandidatesRejected int                `json:"candidates_rejected"`
	TestCount          int                `json:"test_count"`
	PassRates          map[string]float64 `json:"pass_rates,omitempty"`
	AuxiliaryInvoked   []string           `json:"auxiliary_invoked,omitempty"`
	Duration           time.Duration      `json:"duration_ms"`
}

// RetryEntry is a compact history item of a rejected candidate attempt
type RetryEntry struct {
	Attempt  int    `json:"attempt"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// FailureKind identifies run-level terminal errors
type FailureKind string

const (
	FailurePoolUnavailable   FailureKind = "pool_unavailable"
	FailureAllTiersExhausted FailureKind = "all_tiers_exhausted"
	FailureInternal          FailureKind = "internal"
)

// Failure is the structured run-level failure returned to callers
type Failure struct {
	RunID       uuid.UUID   `json:"run_id"`
	Kind        FailureKind `json:"kind"`
	Case        Case        `json:"case"`
	Reason      string      `json:"reason"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Kind, f.Case, f.Reason)
}

// RunStatus is the persisted state of a run
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is what the history sinks receive when a run completes
type RunRecord struct {
	RunID       uuid.UUID   `json:"run_id"`
	WorkspaceID string      `json:"workspace_id"`
	Question    string      `json:"question"`
	Dialect     string      `json:"dialect"`
	Status      RunStatus   `json:"status"`
	SQL         string      `json:"sql,omitempty"`
	Case        Case        `json:"case"`
	Tier        Tier        `json:"tier,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Certificate is an integrity record over the selected SQL of a run
type Certificate struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	SQLHash   string    `json:"sql_hash"`
	Case      Case      `json:"case"`
	Tier      Tier      `json:"tier"`
	Dialect   string    `json:"dialect"`
	Timestamp time.Time `json:"timestamp"`
	HashChain string    `json:"hash_chain"`
	Signature string    `json:"signature"`
}

// GenerationLog tracks model call costs
type GenerationLog struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Agent     string    `json:"agent"`
	Provider  string    `json:"provider"`
	ModelID   string    `json:"model_id"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	LatencyMs int64     `json:"latency_ms"`
	Failed    bool      `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

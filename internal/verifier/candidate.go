package verifier

import (
	"github.com/google/uuid"

	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/retry"
)

// Stage is a state of the validation pipeline
type Stage int

const (
	StageGenerated Stage = iota
	StageSanitized
	StageSyntaxChecked
	StageEvidenceGated
	StageEmptyResultChecked
	StageAccepted
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageGenerated:
		return "generated"
	case StageSanitized:
		return "dialect_sanitized"
	case StageSyntaxChecked:
		return "syntax_checked"
	case StageEvidenceGated:
		return "evidence_gated"
	case StageEmptyResultChecked:
		return "empty_result_checked"
	case StageAccepted:
		return "accepted"
	default:
		return "rejected"
	}
}

// Candidate is one generated SQL statement. Only its own validation
// pipeline mutates it.
type Candidate struct {
	ID          uuid.UUID
	Raw         string
	Sanitized   string
	Explanation string
	Tier        models.Tier
	Agent       string
	Attempt     int
	Stage       Stage
	LastError   *retry.Error
}

// NewCandidate creates a candidate in the Generated state
func NewCandidate(raw, explanation string, tier models.Tier, agent string) *Candidate {
	return &Candidate{
		ID:          uuid.New(),
		Raw:         raw,
		Explanation: explanation,
		Tier:        tier,
		Agent:       agent,
		Stage:       StageGenerated,
	}
}

// Accepted reports whether the candidate passed validation.
func (c *Candidate) Accepted() bool {
	return c.Stage == StageAccepted
}

// SQL returns the sanitised text once accepted, else the raw text.
func (c *Candidate) SQL() string {
	if c.Sanitized != "" {
		return c.Sanitized
	}
	return c.Raw
}

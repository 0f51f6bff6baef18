// Package verifier runs SQL candidates through the validation pipeline:
// dialect sanitisation, a syntax probe, the evidence gate and the optional
// empty-result check.
package verifier

import (
	"context"

	"github.com/axiom/sqlagent/internal/dialect"
)

// Rows is a materialised query result
type Rows struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Executor is the read-only schema/execution service. Implementations must
// never take write access.
type Executor interface {
	// ProbeSyntax checks sql without returning rows. The error carries the
	// engine's message.
	ProbeSyntax(ctx context.Context, sql string, d dialect.Dialect) error
	// Execute runs sql and returns its rows.
	Execute(ctx context.Context, sql string) (*Rows, error)
}

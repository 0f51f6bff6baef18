package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Import sqlite driver

	"github.com/axiom/sqlagent/internal/dialect"
	"github.com/axiom/sqlagent/internal/verifier"
)

// SQLiteExecutor runs candidate SQL against a SQLite database opened with
// query_only, so no statement can write.
type SQLiteExecutor struct {
	db *sql.DB
}

// NewSQLiteExecutor opens dsn, runs setup statements (schema and fixtures)
// and then switches the connection to query-only mode.
func NewSQLiteExecutor(ctx context.Context, dsn string, setup ...string) (*SQLiteExecutor, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// a single connection keeps in-memory databases and the pragma shared
	db.SetMaxOpenConns(1)

	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite setup: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling query_only: %w", err)
	}
	return &SQLiteExecutor{db: db}, nil
}

// ProbeSyntax implements verifier.Executor.
func (e *SQLiteExecutor) ProbeSyntax(ctx context.Context, query string, d dialect.Dialect) error {
	rules, err := dialect.RulesFor(d)
	if err != nil {
		return err
	}
	for _, stmt := range rules.ProbeStatements(query) {
		rows, err := e.db.QueryContext(ctx, stmt)
		if err != nil {
			return err
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Execute implements verifier.Executor.
func (e *SQLiteExecutor) Execute(ctx context.Context, query string) (*verifier.Rows, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &verifier.Rows{Columns: cols}
	for rows.Next() && len(out.Values) < MaxRows {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out.Values = append(out.Values, vals)
	}
	return out, rows.Err()
}

// Close closes the database.
func (e *SQLiteExecutor) Close() error {
	return e.db.Close()
}

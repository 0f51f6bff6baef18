// Package database holds the storage collaborators: read-only query
// executors for target databases, the run history store, the result cache
// and migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/axiom/sqlagent/internal/dialect"
	"github.com/axiom/sqlagent/internal/verifier"
)

// MaxRows caps how many rows Execute materialises.
const MaxRows = 1000

// Postgres wraps the PostgreSQL connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL connection pool
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Pool returns the underlying connection pool
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping checks the connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the database connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// PostgresExecutor runs candidate SQL against a PostgreSQL target inside
// read-only transactions that are always rolled back.
type PostgresExecutor struct {
	db *Postgres
}

// NewPostgresExecutor creates an executor over db
func NewPostgresExecutor(db *Postgres) *PostgresExecutor {
	return &PostgresExecutor{db: db}
}

// ProbeSyntax implements verifier.Executor.
func (e *PostgresExecutor) ProbeSyntax(ctx context.Context, sql string, d dialect.Dialect) error {
	rules, err := dialect.RulesFor(d)
	if err != nil {
		return err
	}
	return e.readOnly(ctx, func(tx pgx.Tx) error {
		for _, stmt := range rules.ProbeStatements(sql) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Execute implements verifier.Executor.
func (e *PostgresExecutor) Execute(ctx context.Context, sql string) (*verifier.Rows, error) {
	out := &verifier.Rows{}
	err := e.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return err
		}
		defer rows.Close()
		for _, fd := range rows.FieldDescriptions() {
			out.Columns = append(out.Columns, fd.Name)
		}
		for rows.Next() && len(out.Values) < MaxRows {
			vals, err := rows.Values()
			if err != nil {
				return err
			}
			out.Values = append(out.Values, vals)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *PostgresExecutor) readOnly(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := e.db.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("beginning read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	return fn(tx)
}

package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/verifier"
)

// Executors hands out read-only executors per workspace database URL.
// PostgreSQL pools are opened once and shared; SQLite files are opened per
// run. A workspace without a database URL uses the fallback executor.
type Executors struct {
	fallback verifier.Executor
	logger   *zap.Logger

	mu    sync.Mutex
	pools map[string]*Postgres
}

// NewExecutors creates an executor source. fallback may be nil.
func NewExecutors(fallback verifier.Executor, logger *zap.Logger) *Executors {
	return &Executors{fallback: fallback, logger: logger, pools: make(map[string]*Postgres)}
}

// Executor returns the executor for ws and a release function to call when
// the run is done.
func (e *Executors) Executor(ctx context.Context, ws *config.Workspace) (verifier.Executor, func(), error) {
	url := ws.DatabaseURL
	switch {
	case url == "":
		if e.fallback == nil {
			return nil, nil, fmt.Errorf("workspace %s has no database_url", ws.ID)
		}
		return e.fallback, func() {}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := e.postgres(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresExecutor(db), func() {}, nil
	case strings.HasPrefix(url, "sqlite:"):
		x, err := NewSQLiteExecutor(ctx, strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//"))
		if err != nil {
			return nil, nil, err
		}
		return x, func() {
			if err := x.Close(); err != nil {
				e.logger.Warn("Failed to close sqlite executor", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database_url scheme for workspace %s", ws.ID)
	}
}

func (e *Executors) postgres(ctx context.Context, url string) (*Postgres, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.pools[url]; ok {
		return db, nil
	}
	db, err := NewPostgres(ctx, url)
	if err != nil {
		return nil, err
	}
	e.pools[url] = db
	return db, nil
}

// Close closes every pooled connection.
func (e *Executors) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for url, db := range e.pools {
		db.Close()
		delete(e.pools, url)
	}
}

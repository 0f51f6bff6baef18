package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/models"
)

// ErrRunNotFound is returned when no run with the given ID was recorded.
var ErrRunNotFound = errors.New("run not found")

// HistoryStore persists completed runs into sql_runs
type HistoryStore struct {
	db     *Postgres
	logger *zap.Logger
}

// NewHistoryStore creates a history store
func NewHistoryStore(db *Postgres, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{db: db, logger: logger}
}

// Record stores a finished run. Failures are logged, not returned: the
// history sink is fire-and-forget.
func (s *HistoryStore) Record(ctx context.Context, rec models.RunRecord) {
	if err := s.Save(ctx, rec); err != nil {
		s.logger.Error("Failed to record run", zap.String("run_id", rec.RunID.String()), zap.Error(err))
	}
}

// Save inserts rec.
func (s *HistoryStore) Save(ctx context.Context, rec models.RunRecord) error {
	diagnostics, err := json.Marshal(rec.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshaling diagnostics: %w", err)
	}
	query := `
		INSERT INTO sql_runs (id, workspace_id, question, dialect, status, sql_text,
			outcome_case, tier, reason, diagnostics, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.Pool().Exec(ctx, query,
		rec.RunID, rec.WorkspaceID, rec.Question, rec.Dialect, string(rec.Status), rec.SQL,
		string(rec.Case), string(rec.Tier), rec.Reason, diagnostics, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Get loads one run by ID.
func (s *HistoryStore) Get(ctx context.Context, id uuid.UUID) (*models.RunRecord, error) {
	query := `
		SELECT id, workspace_id, question, dialect, status, COALESCE(sql_text, ''),
			outcome_case, COALESCE(tier, ''), COALESCE(reason, ''), diagnostics, started_at, completed_at
		FROM sql_runs WHERE id = $1
	`
	var (
		rec         models.RunRecord
		status      string
		outcome     string
		tier        string
		diagnostics []byte
	)
	err := s.db.Pool().QueryRow(ctx, query, id).Scan(
		&rec.RunID, &rec.WorkspaceID, &rec.Question, &rec.Dialect, &status, &rec.SQL,
		&outcome, &tier, &rec.Reason, &diagnostics, &rec.StartedAt, &rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	rec.Status = models.RunStatus(status)
	rec.Case = models.Case(outcome)
	rec.Tier = models.Tier(tier)
	if err := json.Unmarshal(diagnostics, &rec.Diagnostics); err != nil {
		return nil, fmt.Errorf("decoding diagnostics: %w", err)
	}
	return &rec, nil
}

// Recent lists the latest runs of a workspace, newest first.
func (s *HistoryStore) Recent(ctx context.Context, workspaceID string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
		SELECT id, question, status, COALESCE(sql_text, ''), outcome_case, COALESCE(tier, ''), completed_at
		FROM sql_runs WHERE workspace_id = $1
		ORDER BY completed_at DESC LIMIT $2
	`
	rows, err := s.db.Pool().Query(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		var rec models.RunRecord
		var status, outcome, tier string
		if err := rows.Scan(&rec.RunID, &rec.Question, &status, &rec.SQL, &outcome, &tier, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.WorkspaceID = workspaceID
		rec.Status = models.RunStatus(status)
		rec.Case = models.Case(outcome)
		rec.Tier = models.Tier(tier)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UsageStore writes model call records into generation_logs
type UsageStore struct {
	db *Postgres
}

// NewUsageStore creates a usage store
func NewUsageStore(db *Postgres) *UsageStore {
	return &UsageStore{db: db}
}

// Insert stores one generation log row.
func (s *UsageStore) Insert(ctx context.Context, l models.GenerationLog) error {
	query := `
		INSERT INTO generation_logs (id, run_id, agent, provider, model_id, tokens_in, tokens_out, latency_ms, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var runID *uuid.UUID
	if l.RunID != uuid.Nil {
		runID = &l.RunID
	}
	_, err := s.db.Pool().Exec(ctx, query, l.ID, runID, l.Agent, l.Provider, l.ModelID,
		l.TokensIn, l.TokensOut, l.LatencyMs, l.Failed, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting generation log: %w", err)
	}
	return nil
}

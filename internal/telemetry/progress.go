package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Progress receives stage transitions of a run. It replaces process-wide
// progress state: each controller gets its own sink.
type Progress interface {
	Stage(runID uuid.UUID, stage string, fields ...zap.Field)
}

// LogProgress writes stage transitions to a zap logger
type LogProgress struct {
	logger *zap.Logger
}

// NewLogProgress creates a logging progress sink
func NewLogProgress(logger *zap.Logger) *LogProgress {
	return &LogProgress{logger: logger}
}

// Stage logs one transition.
func (p *LogProgress) Stage(runID uuid.UUID, stage string, fields ...zap.Field) {
	p.logger.Info("Run progress",
		append([]zap.Field{zap.String("run_id", runID.String()), zap.String("stage", stage)}, fields...)...)
}

// NopProgress discards everything
type NopProgress struct{}

func (NopProgress) Stage(uuid.UUID, string, ...zap.Field) {}

type runIDKey struct{}

// WithRunID stores the run ID in ctx.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run ID stored in ctx, or uuid.Nil.
func RunID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(runIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

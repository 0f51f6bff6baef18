package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/models"
)

// LogSink writes completed runs to a zap logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logging history sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs rec.
func (s *LogSink) Record(_ context.Context, rec models.RunRecord) {
	fields := []zap.Field{
		zap.String("run_id", rec.RunID.String()),
		zap.String("workspace_id", rec.WorkspaceID),
		zap.String("status", string(rec.Status)),
		zap.String("case", string(rec.Case)),
		zap.String("tier", string(rec.Tier)),
		zap.Int("tiers_attempted", len(rec.Diagnostics.Tiers)),
		zap.Int("retries", len(rec.Diagnostics.RetryHistory)),
		zap.Duration("duration", rec.CompletedAt.Sub(rec.StartedAt)),
	}
	if rec.Status == models.RunStatusFailed {
		s.logger.Warn("Run failed", append(fields, zap.String("reason", rec.Reason))...)
		return
	}
	s.logger.Info("Run completed", fields...)
}

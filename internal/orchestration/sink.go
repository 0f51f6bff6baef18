package orchestration

import (
	"context"

	"github.com/axiom/sqlagent/internal/models"
)

// HistorySink receives every completed run. Implementations log their own
// failures; nothing is returned to the controller.
type HistorySink interface {
	Record(ctx context.Context, rec models.RunRecord)
}

// MultiSink fans a record out to several sinks in order
type MultiSink []HistorySink

// Record implements HistorySink.
func (m MultiSink) Record(ctx context.Context, rec models.RunRecord) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, rec)
		}
	}
}

// SinkFunc adapts a function to HistorySink
type SinkFunc func(ctx context.Context, rec models.RunRecord)

// Record implements HistorySink.
func (f SinkFunc) Record(ctx context.Context, rec models.RunRecord) { f(ctx, rec) }

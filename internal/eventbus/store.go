package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/models"
)

const (
	// RunStream is the JetStream stream holding run events.
	RunStream = "SQLAGENT_RUNS"
	// SubjectRunCompleted carries one models.RunRecord per finished run.
	SubjectRunCompleted = "sqlagent.runs.completed"
)

// JetStreamPublisher is the part of nats.JetStreamContext the publisher uses
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher sends completed runs to JetStream. It implements the
// orchestration history sink.
type Publisher struct {
	js     JetStreamPublisher
	logger *zap.Logger
}

// NewPublisher creates a run publisher
func NewPublisher(js JetStreamPublisher, logger *zap.Logger) *Publisher {
	return &Publisher{js: js, logger: logger}
}

// EnsureStream creates the run stream, or updates it when it already exists.
func EnsureStream(js nats.JetStreamContext) error {
	cfg := &nats.StreamConfig{
		Name:     RunStream,
		Subjects: []string{"sqlagent.runs.>"},
		MaxAge:   7 * 24 * time.Hour,
	}
	_, err := js.AddStream(cfg)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = js.UpdateStream(cfg)
	}
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", RunStream, err)
	}
	return nil
}

// Record publishes rec. Failures are logged, not returned.
func (p *Publisher) Record(ctx context.Context, rec models.RunRecord) {
	if err := p.Publish(ctx, rec); err != nil {
		p.logger.Warn("Failed to publish run event", zap.String("run_id", rec.RunID.String()), zap.Error(err))
	}
}

// Publish sends rec, deduplicated by run ID.
func (p *Publisher) Publish(ctx context.Context, rec models.RunRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}
	_, err = p.js.Publish(SubjectRunCompleted, payload,
		nats.MsgId(rec.RunID.String()),
		nats.Context(ctx),
	)
	return err
}

// Replay reads up to limit run events from the start of the stream.
func Replay(js nats.JetStreamContext, limit int) ([]models.RunRecord, error) {
	sub, err := js.SubscribeSync(SubjectRunCompleted, nats.BindStream(RunStream), nats.DeliverAll())
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	var runs []models.RunRecord
	for len(runs) < limit {
		msg, err := sub.NextMsg(100 * time.Millisecond)
		if errors.Is(err, nats.ErrTimeout) {
			break
		}
		if err != nil {
			return runs, err
		}
		var rec models.RunRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			return runs, fmt.Errorf("decoding run event: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

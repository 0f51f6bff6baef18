package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/models"
)

type fakeJetStream struct {
	subject string
	data    []byte
	opts    int
	err     error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	f.subject, f.data, f.opts = subj, data, len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{Stream: RunStream, Sequence: 1}, nil
}

func TestPublishRunRecord(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, zap.NewNop())
	rec := models.RunRecord{
		RunID:  uuid.New(),
		Status: models.RunStatusSucceeded,
		SQL:    "SELECT 1",
		Case:   models.CaseAGold,
		Tier:   models.TierBasic,
	}

	require.NoError(t, p.Publish(context.Background(), rec))
	assert.Equal(t, SubjectRunCompleted, js.subject)
	assert.Equal(t, 2, js.opts)

	var got models.RunRecord
	require.NoError(t, json.Unmarshal(js.data, &got))
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, models.CaseAGold, got.Case)
}

func TestRecordSwallowsErrors(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	NewPublisher(js, zap.NewNop()).Record(context.Background(), models.RunRecord{RunID: uuid.New()})
	assert.Equal(t, SubjectRunCompleted, js.subject)
}

// Package eventbus publishes run events over NATS JetStream.
package eventbus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Bus is a NATS connection with its JetStream context
type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// Connect dials NATS and opens JetStream. Callers treat an error as "events
// disabled" and keep running.
func Connect(url string, logger *zap.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("sqlagent"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	logger.Info("NATS and JetStream initialized", zap.String("url", url))
	return &Bus{nc: nc, js: js, logger: logger}, nil
}

// JetStream returns the JetStream context.
func (b *Bus) JetStream() nats.JetStreamContext {
	return b.js
}

// Healthy reports whether the connection is up.
func (b *Bus) Healthy() bool {
	return b != nil && b.nc.IsConnected()
}

// Close drains and closes the connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}

// Package messaging implements the External Messaging Sink: a thin
// best-effort outbound adapter over NATS plus a separate inbound
// text-command resolver. Fire-and-forget publish only, no JetStream or
// durable event log — a dropped notification is acceptable, a blocked
// trade is not.
package messaging

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/config"
)

const sendTimeout = 5 * time.Second

// Sink is the outbound messaging adapter: send(recipient, text) -> ok |
// failed, never aborting a core state transition on failure.
type Sink struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// New connects to NATS and returns a Sink.
func New(cfg *config.Config, logger *zap.Logger) (*Sink, error) {
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("obcore-messaging-sink"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("messaging sink disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("messaging sink reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Sink{conn: conn, subject: cfg.NATS.OutboundSubject, logger: logger}, nil
}

// Close closes the underlying connection without draining it.
func (s *Sink) Close() {
	s.conn.Close()
}

// Send publishes text to recipient's outbound subject. It never returns an
// error to the caller's core transition path — failures are logged only,
// and the call is abandoned silently past its timeout.
func (s *Sink) Send(ctx context.Context, recipient, text string) bool {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	subject := s.subject + "." + recipient
	done := make(chan error, 1)
	go func() { done <- s.conn.Publish(subject, []byte(text)) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("messaging sink send failed", zap.String("recipient", recipient), zap.Error(err))
			return false
		}
		return true
	case <-ctx.Done():
		s.logger.Warn("messaging sink send timed out", zap.String("recipient", recipient))
		return false
	}
}

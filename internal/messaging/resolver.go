package messaging

import (
	"context"
	"regexp"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/config"
	"github.com/abdoElHodaky/obcore/internal/matching"
)

// inboundCommand matches a free-text reply of the form "YES <hex-prefix>"
// or "NO <hex-prefix>": the hex token is a prefix of the smaller party's
// order ID, since a plain-text channel can't carry an opaque confirmation
// key verbatim.
var inboundCommand = regexp.MustCompile(`(?i)^(YES|NO)\s+([0-9a-f]{8,})\b`)

// Resolver is a collaborator separate from the Matching Engine: it listens
// on the inbound NATS subject, parses free-text accept/decline commands,
// and forwards the decision by order-ID prefix. Kept apart from Engine so
// the matching core never parses untrusted external text itself.
type Resolver struct {
	conn    *nats.Conn
	subject string
	engine  *matching.Engine
	logger  *zap.Logger
	sub     *nats.Subscription
}

// NewResolver connects to NATS and subscribes to the inbound subject.
func NewResolver(cfg *config.Config, engine *matching.Engine, logger *zap.Logger) (*Resolver, error) {
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("obcore-messaging-resolver"),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, err
	}

	r := &Resolver{conn: conn, subject: cfg.NATS.InboundSubject, engine: engine, logger: logger}

	sub, err := conn.Subscribe(r.subject+".>", r.handle)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.sub = sub
	return r, nil
}

// Close unsubscribes and closes the connection.
func (r *Resolver) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	r.conn.Close()
}

func (r *Resolver) handle(msg *nats.Msg) {
	text := strings.TrimSpace(string(msg.Data))
	match := inboundCommand.FindStringSubmatch(text)
	if match == nil {
		r.logger.Debug("ignoring inbound message without a recognizable command", zap.String("subject", msg.Subject))
		return
	}

	accept := strings.EqualFold(match[1], "YES")
	prefix := strings.ToLower(match[2])

	ctx := context.Background()
	if err := r.engine.ResolveConfirmationByOrderPrefix(ctx, prefix, accept); err != nil {
		r.logger.Info("inbound confirmation command did not resolve",
			zap.String("prefix", prefix), zap.Bool("accept", accept), zap.Error(err))
	}
}

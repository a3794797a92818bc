// Package eventbus is the in-process typed event relay between the Order
// Book Service, the Matching Engine, and the Session Fan-Out: the
// on-demand match trigger (OBS -> ME) and the notification fan-out
// (ME/OBS -> SFO), built on watermill's in-memory gochannel pub/sub — no
// durable log or event-sourced aggregates, just typed fan-out within one
// process.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/model"
)

// Topic names. MatchRequested carries the on-demand match trigger (OBS ->
// ME); Notify carries every typed event for SFO on one topic, with the event
// type inside the envelope rather than in the topic name.
const (
	TopicMatchRequested = "internal.match_requested"
	TopicNotify          = "events.notify"
)

// MatchRequest is the on-demand match-pass trigger payload.
type MatchRequest struct {
	Contract string `json:"contract"`
}

// Bus is the typed publish/subscribe relay.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *zap.Logger
}

// New creates a Bus backed by an in-process gochannel pub/sub.
func New(logger *zap.Logger) *Bus {
	wmLogger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1024,
			Persistent:          false,
		},
		wmLogger,
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Close shuts down the underlying pub/sub.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// RequestMatch publishes an on-demand match-pass trigger for a contract.
func (b *Bus) RequestMatch(ctx context.Context, contract string) error {
	payload, err := json.Marshal(MatchRequest{Contract: contract})
	if err != nil {
		return fmt.Errorf("marshal match request: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	if err := b.pubsub.Publish(TopicMatchRequested, msg); err != nil {
		b.logger.Warn("failed to publish match request", zap.String("contract", contract), zap.Error(err))
		return err
	}
	return nil
}

// SubscribeMatchRequests returns a channel of contract identifiers for the
// Matching Engine's on-demand dispatcher.
func (b *Bus) SubscribeMatchRequests(ctx context.Context) (<-chan string, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicMatchRequested)
	if err != nil {
		return nil, err
	}
	out := make(chan string, 256)
	go func() {
		defer close(out)
		for msg := range msgs {
			var req MatchRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				b.logger.Warn("dropping malformed match request", zap.Error(err))
				msg.Ack()
				continue
			}
			out <- req.Contract
			msg.Ack()
		}
	}()
	return out, nil
}

// Publish fans out a typed event for SFO and any other internal subscriber.
func (b *Bus) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	if err := b.pubsub.Publish(TopicNotify, msg); err != nil {
		b.logger.Warn("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
		return err
	}
	return nil
}

// Subscribe returns a channel of typed events for SFO's fan-out loop.
func (b *Bus) Subscribe(ctx context.Context) (<-chan model.Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicNotify)
	if err != nil {
		return nil, err
	}
	out := make(chan model.Event, 1024)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev model.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn("dropping malformed event", zap.Error(err))
				msg.Ack()
				continue
			}
			out <- ev
			msg.Ack()
		}
	}()
	return out, nil
}

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/obcore/internal/model"
)

func TestRequestMatchAndSubscribe(t *testing.T) {
	bus := New(zaptest.NewLogger(t))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contracts, err := bus.SubscribeMatchRequests(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.RequestMatch(ctx, "mar24-cl"))

	select {
	case c := <-contracts:
		assert.Equal(t, "mar24-cl", c)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for match request")
	}
}

func TestPublishAndSubscribeRoundTrip(t *testing.T) {
	bus := New(zaptest.NewLogger(t))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	order := model.OrderResponse{ID: "order-1", Owner: "user-1", Contract: "mar24-cl"}
	require.NoError(t, bus.Publish(ctx, model.NewEvent(model.EventOrderCreated, order)))

	select {
	case ev := <-events:
		assert.Equal(t, model.EventOrderCreated, ev.Type)
		payload, ok := ev.Data.(map[string]interface{})
		require.True(t, ok, "event data survives a JSON round trip as a map")
		assert.Equal(t, "order-1", payload["id"])
		assert.Equal(t, "user-1", payload["owner"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/obcore/internal/model"
)

func newTestHub(t *testing.T) *Hub {
	return &Hub{
		logger:  zaptest.NewLogger(t),
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func newTestClient(id, owner string) *Client {
	return &Client{
		ID:    id,
		Owner: owner,
		send:  make(chan []byte, 8),
		rooms: make(map[string]struct{}),
	}
}

func (h *Hub) attachForTest(c *Client, rooms ...string) {
	h.clients[c.ID] = c
	for _, room := range rooms {
		h.join(c, room)
	}
}

func recvEvent(t *testing.T, c *Client) model.Event {
	select {
	case raw := <-c.send:
		var ev model.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	default:
		t.Fatalf("client %s received nothing", c.ID)
		return model.Event{}
	}
}

func TestRouteOrderCreatedBroadcastsToOwnerRoomOnly(t *testing.T) {
	h := newTestHub(t)
	owner := newTestClient("c1", "alice")
	other := newTestClient("c2", "bob")
	h.attachForTest(owner, userRoom("alice"))
	h.attachForTest(other, userRoom("bob"))

	ev := model.NewEvent(model.EventOrderCreated, model.OrderResponse{ID: "o1", Owner: "alice", Contract: "mar24-cl"})
	h.route(ev)

	recvEvent(t, owner)
	assert.Empty(t, other.send, "a different owner's room must not receive this order's event")
}

func TestRouteOrderUpdatedAlsoBroadcastsMarketRoomForOffers(t *testing.T) {
	h := newTestHub(t)
	owner := newTestClient("c1", "alice")
	marketWatcher := newTestClient("c2", "bob")
	h.attachForTest(owner, userRoom("alice"))
	h.attachForTest(marketWatcher, marketRoom("mar24-cl"))

	ev := model.NewEvent(model.EventOrderUpdated, model.OrderResponse{
		ID: "o1", Owner: "alice", Contract: "mar24-cl", Side: model.SideOffer,
	})
	h.route(ev)

	recvEvent(t, owner)
	recvEvent(t, marketWatcher)
}

func TestRouteOrderUpdatedSkipsMarketRoomForBids(t *testing.T) {
	h := newTestHub(t)
	marketWatcher := newTestClient("c2", "bob")
	h.attachForTest(marketWatcher, marketRoom("mar24-cl"))

	ev := model.NewEvent(model.EventOrderUpdated, model.OrderResponse{
		ID: "o1", Owner: "alice", Contract: "mar24-cl", Side: model.SideBid,
	})
	h.route(ev)

	assert.Empty(t, marketWatcher.send, "bid-side updates must not leak into the market room")
}

func TestRouteTradeExecutedBroadcastsToBuyerSellerAndMarket(t *testing.T) {
	h := newTestHub(t)
	buyer := newTestClient("c1", "alice")
	seller := newTestClient("c2", "bob")
	watcher := newTestClient("c3", "carol")
	h.attachForTest(buyer, userRoom("alice"))
	h.attachForTest(seller, userRoom("bob"))
	h.attachForTest(watcher, marketRoom("mar24-cl"))

	payload := model.TradeExecutedPayload{
		Trade: model.Trade{ID: "t1", Contract: "mar24-cl", Buyer: "alice", Seller: "bob", Price: 10.5, Qty: 5},
	}
	h.route(model.NewEvent(model.EventTradeExecuted, payload))

	recvEvent(t, buyer)
	recvEvent(t, seller)
	recvEvent(t, watcher)
}

func TestRouteDropsUndecodablePayload(t *testing.T) {
	h := newTestHub(t)
	owner := newTestClient("c1", "alice")
	h.attachForTest(owner, userRoom("alice"))

	// A bare string cannot unmarshal into model.OrderResponse.
	h.route(model.NewEvent(model.EventOrderCreated, "not-an-order"))

	assert.Empty(t, owner.send, "an undecodable payload must be dropped, not broadcast")
}

func TestHandleCancelledLastLeavesMarketRoom(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient("c1", "alice")
	h.attachForTest(c, userRoom("alice"), marketRoom("mar24-cl"))

	ev := model.NewEvent(model.EventOrderCancelled, model.OrderResponse{
		ID: "o1", Owner: "alice", Contract: "mar24-cl", RemainingQty: 0,
	})
	h.route(ev)

	recvEvent(t, c)
	_, stillInRoom := c.rooms[marketRoom("mar24-cl")]
	assert.False(t, stillInRoom, "cancelling the last live order in a contract drops the market room membership")
}

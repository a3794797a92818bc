// Package session implements the Session Fan-Out: room-based WebSocket
// broadcast over authenticated connections, auto-joined to `user:<owner>`
// and `market:<contract>` rooms, plus an admin room. A connection registry
// and room/channel subscriber sets back the broadcast, with a ping/pong
// heartbeat keeping idle connections alive.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/eventbus"
	"github.com/abdoElHodaky/obcore/internal/matching"
	"github.com/abdoElHodaky/obcore/internal/model"
	"github.com/abdoElHodaky/obcore/internal/orderbook"
)

const adminRoom = "admin"

func userRoom(owner string) string      { return "user:" + owner }
func marketRoom(contract string) string { return "market:" + contract }

// Hub owns the client registry and the room membership index, and runs the
// fan-out loop consuming the in-process event bus.
type Hub struct {
	bus     *eventbus.Bus
	engine  *matching.Engine
	obs     *orderbook.Service
	logger  *zap.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	rooms    map[string]map[string]*Client
}

// NewHub constructs a Hub wired to the in-process event bus, the Matching
// Engine (for inbound confirmation routing), and the OBS (for auto-join
// contract discovery on session attach).
func NewHub(bus *eventbus.Bus, engine *matching.Engine, obs *orderbook.Service, logger *zap.Logger) *Hub {
	return &Hub{
		bus:     bus,
		engine:  engine,
		obs:     obs,
		logger:  logger,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Run consumes the internal event bus and dispatches each event to its
// rooms; it blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.route(ev)
		}
	}
}

// Attach registers a new client and auto-joins it to its own user room, the
// market room of every contract in which it holds an active order, and the
// admin room if isAdmin.
func (h *Hub) Attach(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.join(c, userRoom(c.Owner))
	if c.IsAdmin {
		h.join(c, adminRoom)
	}

	orders, err := h.obs.GetUserOrders(ctx, c.Owner)
	if err != nil {
		h.logger.Warn("failed to load orders for session auto-join", zap.String("owner", c.Owner), zap.Error(err))
		return
	}
	seen := make(map[string]struct{})
	for _, o := range orders {
		if !o.IsLive() {
			continue
		}
		if _, ok := seen[o.Contract]; ok {
			continue
		}
		seen[o.Contract] = struct{}{}
		h.join(c, marketRoom(o.Contract))
	}
}

// Detach removes a client from every room and the registry.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID)
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}
}

// leave removes a single client from a single room; used when an owner
// cancels their last active order in a contract.
func (h *Hub) leave(owner, contract string) {
	room := marketRoom(contract)
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	for id, c := range members {
		if c.Owner != owner {
			continue
		}
		delete(members, id)
		delete(c.rooms, room)
	}
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// broadcast sends data to every client in room.
func (h *Hub) broadcast(room string, data []byte) {
	h.mu.RLock()
	members := h.rooms[room]
	recipients := make([]*Client, 0, len(members))
	for _, c := range members {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping message to slow client", zap.String("client_id", c.ID), zap.String("room", room))
		}
	}
}

// HandleInbound processes a message arriving on a client's session:
// match:approval_response, quantity:confirmation_response, and
// negotiation:response are each forwarded to the matching engine by opaque
// key.
func (h *Hub) HandleInbound(ctx context.Context, c *Client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("dropping malformed inbound session message", zap.String("client_id", c.ID), zap.Error(err))
		return
	}

	switch msg.Type {
	case "quantity:confirmation_response", "match:approval_response", "negotiation:response":
		var resp model.ConfirmationResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			h.logger.Warn("dropping malformed confirmation response", zap.Error(err))
			return
		}
		if err := h.engine.ResolveConfirmation(ctx, resp.ConfirmationKey, resp.Accepted); err != nil {
			h.logger.Info("confirmation resolution rejected", zap.String("key", resp.ConfirmationKey), zap.Error(err))
		}
	default:
		h.logger.Debug("ignoring unrecognized inbound session message type", zap.String("type", msg.Type))
	}
}

// inboundMessage is the generic envelope a session sends upstream.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

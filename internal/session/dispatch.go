package session

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/model"
)

// route decodes an event's typed payload, resolves the target room(s), and
// broadcasts. Events whose payload doesn't carry owner/contract information
// are dropped rather than broadcast blind (most of them with a warning).
func (h *Hub) route(ev model.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to re-marshal event for session broadcast", zap.Error(err))
		return
	}

	switch ev.Type {
	case model.EventOrderCreated, model.EventOrderCancelled, model.EventOrderMatched,
		model.EventOrderFilled, model.EventOrderPartialFill, model.EventNegotiationYourTurn:
		order, ok := decodeOrder(ev.Data)
		if !ok {
			h.logger.Warn("dropping order event with undecodable payload", zap.String("type", string(ev.Type)))
			return
		}
		h.broadcast(userRoom(order.Owner), raw)
		if ev.Type == model.EventOrderCancelled && order.RemainingQty == 0 {
			h.handleCancelledLast(order)
		}

	case model.EventOrderUpdated:
		order, ok := decodeOrder(ev.Data)
		if !ok {
			h.logger.Warn("dropping order:updated event with undecodable payload")
			return
		}
		h.broadcast(userRoom(order.Owner), raw)
		if order.Side == model.SideOffer {
			h.broadcast(marketRoom(order.Contract), raw)
		}

	case model.EventMarketUpdate:
		order, ok := decodeOrder(ev.Data)
		if !ok {
			return
		}
		h.broadcast(marketRoom(order.Contract), raw)

	case model.EventTradeExecuted:
		payload, ok := decodeTradeExecuted(ev.Data)
		if !ok {
			h.logger.Warn("dropping trade:executed event with undecodable payload")
			return
		}
		trade := payload.Trade
		h.broadcast(userRoom(trade.Buyer), raw)
		h.broadcast(userRoom(trade.Seller), raw)
		h.broadcast(marketRoom(trade.Contract), raw)

	case model.EventMarketPriceChanged:
		contract, ok := decodeContract(ev.Data)
		if !ok {
			h.logger.Warn("dropping market:price_changed event with undecodable payload")
			return
		}
		h.broadcast(marketRoom(contract), raw)

	case model.EventQuantityConfirmationRequest:
		owner, ok := decodeConfirmationOwner(ev.Data)
		if !ok {
			h.logger.Warn("dropping quantity:confirmation_request with undecodable payload")
			return
		}
		h.broadcast(userRoom(owner), raw)

	case model.EventQuantityPartialFillDeclined:
		pc, ok := decodePendingConfirmation(ev.Data)
		if !ok {
			return
		}
		h.broadcast(userRoom(pc.SmallerOwner), raw)

	case model.EventQuantityCounterpartyDecline:
		pc, ok := decodePendingConfirmation(ev.Data)
		if !ok {
			return
		}
		h.broadcast(userRoom(pc.LargerOwner), raw)

	default:
		h.logger.Debug("no routing rule for event type, broadcasting to admin only", zap.String("type", string(ev.Type)))
	}

	if isAdminVisible(ev.Type) {
		h.broadcast(adminRoom, raw)
	}
}

// isAdminVisible reports whether an event type may also fan out to the admin
// room. Quantity-confirmation events are addressed to one specific party
// (the smaller side on the request, the relevant side on a decline) and must
// not leak to anyone else, admin included.
func isAdminVisible(t model.EventType) bool {
	switch t {
	case model.EventQuantityConfirmationRequest, model.EventQuantityPartialFillDeclined, model.EventQuantityCounterpartyDecline:
		return false
	default:
		return true
	}
}

// handleCancelledLast drops the owner from the contract's market room once
// their last active order there is gone. Only reachable for
// order:cancelled; an order:filled event does not remove the owner from
// the market room.
func (h *Hub) handleCancelledLast(order model.OrderResponse) {
	h.leave(order.Owner, order.Contract)
}

func decodeOrder(data interface{}) (model.OrderResponse, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return model.OrderResponse{}, false
	}
	var o model.OrderResponse
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.OrderResponse{}, false
	}
	return o, true
}

func decodeTradeExecuted(data interface{}) (model.TradeExecutedPayload, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return model.TradeExecutedPayload{}, false
	}
	var payload model.TradeExecutedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return model.TradeExecutedPayload{}, false
	}
	return payload, true
}

func decodeContract(data interface{}) (string, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", false
	}
	var bp model.BestPriceChange
	if err := json.Unmarshal(raw, &bp); err != nil {
		return "", false
	}
	return bp.Contract, true
}

func decodeConfirmationOwner(data interface{}) (string, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", false
	}
	var payload model.ConfirmationRequestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}
	return payload.Owner, true
}

func decodePendingConfirmation(data interface{}) (*model.PendingConfirmation, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	var pc model.PendingConfirmation
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, false
	}
	return &pc, true
}

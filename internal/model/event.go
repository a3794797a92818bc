package model

import "time"

// EventType is the closed set of event tags carried on the cache bus and
// the session bus. A typed enum rather than a free-form string so a
// consumer/type mismatch is caught at construction rather than at dispatch.
type EventType string

const (
	EventOrderCreated                EventType = "order:created"
	EventOrderUpdated                EventType = "order:updated"
	EventOrderCancelled              EventType = "order:cancelled"
	EventTradeExecuted               EventType = "trade:executed"
	EventMarketUpdate                EventType = "market:update"
	EventMarketPriceChanged          EventType = "market:price_changed"
	EventOrderMatched                EventType = "order:matched"
	EventOrderFilled                 EventType = "order:filled"
	EventOrderPartialFill            EventType = "order:partial_fill"
	EventQuantityConfirmationRequest EventType = "quantity:confirmation_request"
	EventQuantityPartialFillApproval EventType = "quantity:partial_fill_approval"
	EventQuantityPartialFillDeclined EventType = "quantity:partial_fill_declined"
	EventQuantityCounterpartyDecline EventType = "quantity:counterparty_declined"
	EventNegotiationYourTurn         EventType = "negotiation:your_turn"
)

// Event is the JSON envelope exchanged over the Market Cache's pub/sub
// channels and the Session Fan-Out's room broadcasts.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data interface{}) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// OrderResponse is the external shape of an Order. Owner is carried on
// every emitted event so the Session Fan-Out can route to `user:<owner>`
// without a store round-trip.
type OrderResponse struct {
	ID           string      `json:"id"`
	Owner        string      `json:"owner"`
	Side         OrderSide   `json:"side"`
	Price        float64     `json:"price"`
	Contract     string      `json:"contract"`
	OriginalQty  int64       `json:"original_qty"`
	RemainingQty int64       `json:"remaining_qty"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// ToResponse projects an Order to its external representation.
func (o *Order) ToResponse() OrderResponse {
	return OrderResponse{
		ID:           o.ID,
		Owner:        o.Owner,
		Side:         o.Side,
		Price:        o.Price,
		Contract:     o.Contract,
		OriginalQty:  o.OriginalQty,
		RemainingQty: o.RemainingQty,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
		ExpiresAt:    o.ExpiresAt,
	}
}

// BestPriceChange is the payload of a market:price_changed event.
type BestPriceChange struct {
	Contract         string   `json:"contract"`
	BestBid          *float64 `json:"best_bid"`
	BestOffer        *float64 `json:"best_offer"`
	PreviousBestBid  *float64 `json:"previous_best_bid"`
	PreviousBestOffer *float64 `json:"previous_best_offer"`
	BidChanged       bool     `json:"bid_changed"`
	OfferChanged     bool     `json:"offer_changed"`
	Timestamp        time.Time `json:"timestamp"`
}

// ConfirmationRequestPayload is sent to the smaller party over both the
// session channel and the external messaging channel.
type ConfirmationRequestPayload struct {
	ConfirmationKey     string  `json:"confirmation_key"`
	Contract            string  `json:"contract"`
	Owner               string  `json:"owner"`
	YourOrderID         string  `json:"your_order_id"`
	CounterpartyOrderID string  `json:"counterparty_order_id"`
	YourQty             int64   `json:"your_qty"`
	CounterpartyQty     int64   `json:"counterparty_qty"`
	AdditionalQty       int64   `json:"additional_qty"`
	Price               float64 `json:"price"`
	Side                Party   `json:"side"`
	Message             string  `json:"message"`
	DeadlineSeconds     int     `json:"deadline_seconds"`
}

// ConfirmationResponse is the inbound payload on the session channel.
type ConfirmationResponse struct {
	ConfirmationKey string `json:"confirmation_key"`
	Accepted        bool   `json:"accepted"`
	NewQty          *int64 `json:"new_qty,omitempty"`
}

// TradeExecutedPayload carries the trade plus the consumer-facing fill
// classification label.
type TradeExecutedPayload struct {
	Trade          Trade               `json:"trade"`
	Classification FillClassification  `json:"classification"`
	BuyerRemaining int64               `json:"buyer_remaining"`
	SellerRemaining int64              `json:"seller_remaining"`
}

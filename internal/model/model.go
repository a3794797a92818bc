// Package model holds the core domain types shared by every component of
// the order-book matching core: Order, Trade, User, Pending Confirmation,
// and the event envelope exchanged over the cache bus and the session bus.
package model

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

var (
	monthYearPattern = regexp.MustCompile(`^[a-z]{3}[0-9]{2}$`)
	productPattern   = regexp.MustCompile(`^[a-z]{2,}$`)
)

// Contract builds the normalized "<monthyear>-<product>" identifier and
// reports whether the two components are well-formed.
func Contract(monthYear, product string) (string, bool) {
	if !monthYearPattern.MatchString(monthYear) || !productPattern.MatchString(product) {
		return "", false
	}
	return fmt.Sprintf("%s-%s", monthYear, product), true
}

// OrderSide is BID or OFFER.
type OrderSide string

const (
	SideBid   OrderSide = "BID"
	SideOffer OrderSide = "OFFER"
)

// OrderStatus is the order lifecycle status.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusMatched   OrderStatus = "MATCHED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// Order is a resting bid or offer for a contract.
type Order struct {
	ID           string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Owner        string      `gorm:"type:varchar(36);index" json:"owner"`
	Contract     string      `gorm:"type:varchar(32);index" json:"contract"`
	Side         OrderSide   `gorm:"type:varchar(5);index" json:"side"`
	Price        float64     `gorm:"type:decimal(20,4)" json:"price"`
	OriginalQty  int64       `json:"original_qty"`
	RemainingQty int64       `json:"remaining_qty"`
	Status       OrderStatus `gorm:"type:varchar(12);index" json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// IsLive reports whether the order is eligible to be matched or shown in
// market data: active and not yet fully filled.
func (o *Order) IsLive() bool {
	return o.Status == OrderStatusActive && o.RemainingQty > 0
}

// Trade is the immutable record of a single execution.
type Trade struct {
	ID          string    `gorm:"primaryKey;type:varchar(27)" json:"id"`
	Contract    string    `gorm:"type:varchar(32);index" json:"contract"`
	Price       float64   `gorm:"type:decimal(20,4)" json:"price"`
	Qty         int64     `json:"qty"`
	BuyerOrder  string    `gorm:"type:varchar(36);index" json:"buyer_order"`
	SellerOrder string    `gorm:"type:varchar(36);index" json:"seller_order"`
	Buyer       string    `gorm:"type:varchar(36);index" json:"buyer"`
	Seller      string    `gorm:"type:varchar(36);index" json:"seller"`
	Commission  float64   `gorm:"type:decimal(20,4)" json:"commission"`
	CreatedAt   time.Time `json:"created_at"`
}

// Commission applies the venue's half-away-from-zero rounding policy to
// qty * price * rate, rounded to the nearest cent.
func Commission(qty int64, price, rate float64) float64 {
	raw := float64(qty) * price * rate
	return math.Round(raw*100) / 100
}

// User is the minimal durable identity a trade or order references. Account
// registration and credential verification are external collaborators;
// this row only anchors foreign keys.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Handle    string    `gorm:"type:varchar(64);uniqueIndex" json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// BestPrice is the optional best-bid/best-offer snapshot for a contract.
type BestPrice struct {
	BestBid   *float64
	BestOffer *float64
}

// Equal reports whether two snapshots carry the same prices.
func (b BestPrice) Equal(other BestPrice) bool {
	return float64PtrEqual(b.BestBid, other.BestBid) && float64PtrEqual(b.BestOffer, other.BestOffer)
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Party distinguishes the smaller/larger side of a quantity mismatch, and
// doubles as the buy/sell role tag on confirmation payloads.
type Party string

const (
	PartyBuyer  Party = "BUYER"
	PartySeller Party = "SELLER"
)

// ConfirmationState is the QCSM state.
type ConfirmationState string

const (
	ConfirmationAwaitingSmaller ConfirmationState = "AWAITING_SMALLER"
	ConfirmationAccepted        ConfirmationState = "ACCEPTED"
	ConfirmationDeclined        ConfirmationState = "DECLINED"
	ConfirmationTimedOut        ConfirmationState = "TIMED_OUT"
)

// PendingConfirmation is the matching engine's transient in-memory record
// for a price-equal, quantity-mismatched (bid, offer) pair. Owned
// exclusively by the Matching Engine; never persisted.
type PendingConfirmation struct {
	Key          string
	Contract     string
	BidOrderID   string
	OfferOrderID string
	SmallerParty Party
	SmallerOrder string
	LargerOrder  string
	SmallerOwner string
	LargerOwner  string
	SmallerQty   int64
	LargerQty    int64
	Price        float64
	State        ConfirmationState
	Deadline     time.Time
}

// ConfirmationKey builds the canonical "contract:bid_id:offer_id" key.
func ConfirmationKey(contract, bidID, offerID string) string {
	return fmt.Sprintf("%s:%s:%s", contract, bidID, offerID)
}

// FillClassification labels a trade for downstream consumers; it never
// alters settlement.
type FillClassification string

const (
	FullMatch          FillClassification = "FULL_MATCH"
	PartialFillBuyer   FillClassification = "PARTIAL_FILL_BUYER"
	PartialFillSeller  FillClassification = "PARTIAL_FILL_SELLER"
)

// AccountSummary rolls up a user's open and filled notional across every
// order and trade they hold.
type AccountSummary struct {
	Owner           string  `json:"owner"`
	OpenOrders      int     `json:"open_orders"`
	OpenNotional    float64 `json:"open_notional"`
	FilledNotional  float64 `json:"filled_notional"`
	CommissionPaid  float64 `json:"commission_paid"`
	TradeCount      int     `json:"trade_count"`
}

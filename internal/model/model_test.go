package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContract(t *testing.T) {
	contract, ok := Contract("mar24", "cl")
	assert.True(t, ok)
	assert.Equal(t, "mar24-cl", contract)

	_, ok = Contract("MAR24", "cl")
	assert.False(t, ok, "uppercase month-year should be rejected")

	_, ok = Contract("mar24", "c")
	assert.False(t, ok, "single-letter product should be rejected")

	_, ok = Contract("mar2024", "cl")
	assert.False(t, ok, "four-digit year should be rejected")
}

func TestOrderIsLive(t *testing.T) {
	cases := []struct {
		name   string
		status OrderStatus
		qty    int64
		want   bool
	}{
		{"active with remaining qty", OrderStatusActive, 10, true},
		{"active but exhausted", OrderStatusActive, 0, false},
		{"matched", OrderStatusMatched, 10, false},
		{"cancelled", OrderStatusCancelled, 10, false},
		{"expired", OrderStatusExpired, 10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Order{Status: tc.status, RemainingQty: tc.qty}
			assert.Equal(t, tc.want, o.IsLive())
		})
	}
}

func TestCommissionRounding(t *testing.T) {
	cases := []struct {
		name  string
		qty   int64
		price float64
		rate  float64
		want  float64
	}{
		{"exact cents", 100, 10.00, 0.001, 1.00},
		{"rounds half away from zero up", 1, 0.125, 1.0, 0.13},
		{"rounds down below half", 1, 0.124, 1.0, 0.12},
		{"zero quantity", 0, 100.0, 0.001, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Commission(tc.qty, tc.price, tc.rate), 0.0001)
		})
	}
}

func TestBestPriceEqual(t *testing.T) {
	p1, p2 := 10.5, 10.5
	a := BestPrice{BestBid: &p1, BestOffer: nil}
	b := BestPrice{BestBid: &p2, BestOffer: nil}
	assert.True(t, a.Equal(b))

	p3 := 11.0
	c := BestPrice{BestBid: &p3}
	assert.False(t, a.Equal(c))

	assert.True(t, BestPrice{}.Equal(BestPrice{}), "two empty snapshots are equal")

	d := BestPrice{BestBid: &p1}
	assert.False(t, d.Equal(BestPrice{}), "present vs nil must not be equal")
}

func TestConfirmationKey(t *testing.T) {
	key := ConfirmationKey("mar24-cl", "bid-1", "offer-1")
	assert.Equal(t, "mar24-cl:bid-1:offer-1", key)
}

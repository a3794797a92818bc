package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abdoElHodaky/obcore/internal/model"
)

func order(id, owner string, side model.OrderSide, price float64, qty int64, createdAt time.Time) *model.Order {
	return &model.Order{
		ID: id, Owner: owner, Contract: "mar24-cl", Side: side,
		Price: price, OriginalQty: qty, RemainingQty: qty,
		Status: model.OrderStatusActive, CreatedAt: createdAt,
	}
}

func TestSplitAndSortPriceTimePriority(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orders := []*model.Order{
		order("b1", "u1", model.SideBid, 10.0, 5, t0.Add(2*time.Second)),
		order("b2", "u2", model.SideBid, 10.5, 5, t0.Add(time.Second)),
		order("b3", "u3", model.SideBid, 10.5, 5, t0),
		order("o1", "u4", model.SideOffer, 11.0, 5, t0.Add(time.Second)),
		order("o2", "u5", model.SideOffer, 10.8, 5, t0),
		order("cancelled", "u6", model.SideBid, 99, 5, t0),
	}
	orders[5].Status = model.OrderStatusCancelled

	bids, offers := splitAndSort(orders)

	if assert.Len(t, bids, 3) {
		assert.Equal(t, "b3", bids[0].ID, "best bid: highest price, earliest at the price")
		assert.Equal(t, "b2", bids[1].ID)
		assert.Equal(t, "b1", bids[2].ID)
	}
	if assert.Len(t, offers, 2) {
		assert.Equal(t, "o2", offers[0].ID, "best offer: lowest price")
		assert.Equal(t, "o1", offers[1].ID)
	}
}

func TestSplitAndSortExcludesExhaustedOrders(t *testing.T) {
	t0 := time.Now()
	exhausted := order("b1", "u1", model.SideBid, 10, 5, t0)
	exhausted.RemainingQty = 0

	bids, _ := splitAndSort([]*model.Order{exhausted})
	assert.Empty(t, bids)
}

func TestSelectEligiblePairSkipsSameOwner(t *testing.T) {
	t0 := time.Now()
	bids := []*model.Order{
		order("b1", "same-owner", model.SideBid, 10.5, 5, t0),
		order("b2", "u2", model.SideBid, 10.0, 5, t0),
	}
	offers := []*model.Order{
		order("o1", "same-owner", model.SideOffer, 10.0, 5, t0),
		order("o2", "u3", model.SideOffer, 10.2, 5, t0),
	}

	never := func(string, string, string) bool { return false }
	bid, offer := selectEligiblePair(bids, offers, never)

	assert.NotNil(t, bid)
	assert.NotNil(t, offer)
	assert.NotEqual(t, bid.Owner, offer.Owner, "must never pair an owner against themselves")
}

func TestSelectEligiblePairSkipsDeclinedPairs(t *testing.T) {
	t0 := time.Now()
	bids := []*model.Order{order("b1", "u1", model.SideBid, 10, 5, t0)}
	offers := []*model.Order{order("o1", "u2", model.SideOffer, 10, 5, t0)}

	declinedKey := model.ConfirmationKey("mar24-cl", "b1", "o1")
	declined := func(contract, bidID, offerID string) bool {
		return model.ConfirmationKey(contract, bidID, offerID) == declinedKey
	}

	bid, offer := selectEligiblePair(bids, offers, declined)
	assert.Nil(t, bid)
	assert.Nil(t, offer)
}

func TestSelectEligiblePairReturnsNilWhenNoneEligible(t *testing.T) {
	t0 := time.Now()
	bids := []*model.Order{order("b1", "only-owner", model.SideBid, 10, 5, t0)}
	offers := []*model.Order{order("o1", "only-owner", model.SideOffer, 10, 5, t0)}

	never := func(string, string, string) bool { return false }
	bid, offer := selectEligiblePair(bids, offers, never)
	assert.Nil(t, bid)
	assert.Nil(t, offer)
}

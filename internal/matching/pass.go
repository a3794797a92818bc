package matching

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/model"
	"github.com/abdoElHodaky/obcore/internal/store"
)

// step runs a single matching decision for contract: it re-reads the live
// order set, selects the best eligible bid/offer pair, and either executes
// a trade, opens a Pending Quantity Confirmation, emits a competitive
// bidding alert, or does nothing. It reports whether a trade was committed
// — the caller loops while that is true, since committing a trade can
// expose a new best price on either side.
func (e *Engine) step(ctx context.Context, contract string) (bool, error) {
	orders, err := e.store.Orders.ListActiveByContract(ctx, contract)
	if err != nil {
		return false, err
	}

	bids, offers := splitAndSort(orders)
	if len(bids) == 0 || len(offers) == 0 {
		return false, nil
	}

	bid, offer := selectEligiblePair(bids, offers, e.isDeclined)
	if bid == nil || offer == nil {
		e.maybeAlert(ctx, contract, bids[0], offers[0])
		return false, nil
	}

	// A crossing or price-equal pair always matches; whether that match
	// executes immediately or needs a quantity confirmation depends only on
	// whether the two remaining quantities agree, never on how the prices
	// compare past the crossing point.
	switch {
	case bid.Price >= offer.Price && bid.RemainingQty == offer.RemainingQty:
		return e.executeTrade(ctx, contract, bid, offer)
	case bid.Price >= offer.Price:
		return false, e.openConfirmation(ctx, contract, bid, offer)
	default:
		e.maybeAlert(ctx, contract, bids[0], offers[0])
		return false, nil
	}
}

// splitAndSort partitions live orders into bids and offers, sorted by
// price-time priority: best_bid = argmax(price) then argmin(created_at);
// best_offer = argmin(price) then argmin(created_at).
func splitAndSort(orders []*model.Order) (bids, offers []*model.Order) {
	for _, o := range orders {
		if !o.IsLive() {
			continue
		}
		if o.Side == model.SideBid {
			bids = append(bids, o)
		} else {
			offers = append(offers, o)
		}
	}
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Price != bids[j].Price {
			return bids[i].Price > bids[j].Price
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].Price != offers[j].Price {
			return offers[i].Price < offers[j].Price
		}
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
	return bids, offers
}

// selectEligiblePair walks the priority-sorted candidates and returns the
// first (bid, offer) pair belonging to different owners whose confirmation
// key is not in the declined set — the self-trade guard plus the declined-
// pair memoization that keeps a rejected quantity confirmation from being
// re-offered every tick.
func selectEligiblePair(bids, offers []*model.Order, declined func(contract, bidID, offerID string) bool) (*model.Order, *model.Order) {
	for _, bid := range bids {
		for _, offer := range offers {
			if bid.Owner == offer.Owner {
				continue
			}
			if declined(bid.Contract, bid.ID, offer.ID) {
				continue
			}
			return bid, offer
		}
	}
	return nil, nil
}

// executeTrade dispatches to the store's atomic trade-execution
// transaction, then performs the best-effort post-commit
// refresh/publish/notify sequence.
func (e *Engine) executeTrade(ctx context.Context, contract string, bid, offer *model.Order) (bool, error) {
	result, err := e.store.Trades.Execute(ctx, bid.ID, offer.ID, e.cfg.Matching.CommissionRate)
	if err != nil {
		return false, err
	}
	e.clearDeclined(contract, bid.ID, offer.ID)
	e.afterTrade(ctx, contract, result)
	return true, nil
}

// afterTrade is the best-effort tail of trade execution: cache
// invalidation, event publication, and per-counterparty notification, all
// strictly after the transaction has committed. None of this is allowed to
// roll back the trade if it fails — it only logs.
func (e *Engine) afterTrade(ctx context.Context, contract string, result *store.ExecuteResult) {
	e.cache.InvalidateOrderBook(ctx, contract)

	payload := model.TradeExecutedPayload{
		Trade:           result.Trade,
		Classification:  result.Classification,
		BuyerRemaining:  result.BuyerOrder.RemainingQty,
		SellerRemaining: result.SellerOrder.RemainingQty,
	}
	ev := model.NewEvent(model.EventTradeExecuted, payload)
	e.cache.Publish(ctx, ev)
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("failed to fan out trade event", zap.Error(err))
	}

	for _, o := range []model.Order{result.BuyerOrder, result.SellerOrder} {
		evType := model.EventOrderFilled
		if o.IsLive() {
			evType = model.EventOrderPartialFill
		}
		orderEv := model.NewEvent(evType, o.ToResponse())
		e.cache.Publish(ctx, orderEv)
		if err := e.bus.Publish(ctx, orderEv); err != nil {
			e.logger.Warn("failed to fan out order fill event", zap.Error(err))
		}
		text := fmt.Sprintf("Order %s fully filled at %.4f.", shortToken(o.ID), result.Trade.Price)
		if o.IsLive() {
			text = fmt.Sprintf("Order %s partial fill at %.4f, %d remaining.", shortToken(o.ID), result.Trade.Price, o.RemainingQty)
		}
		e.notify(ctx, o.Owner, text)
	}
}

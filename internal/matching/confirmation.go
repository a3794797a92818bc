package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// openConfirmation handles a crossing, quantity-mismatched pair not already
// in the declined set: it opens a Pending Quantity Confirmation addressed to
// the smaller party, unless one is already outstanding for this exact key.
func (e *Engine) openConfirmation(ctx context.Context, contract string, bid, offer *model.Order) error {
	key := model.ConfirmationKey(contract, bid.ID, offer.ID)

	e.confMu.Lock()
	if _, exists := e.confirmations[key]; exists {
		e.confMu.Unlock()
		return nil
	}

	smallerParty, smallerOrder, largerOrder := model.PartyBuyer, bid, offer
	if offer.RemainingQty < bid.RemainingQty {
		smallerParty, smallerOrder, largerOrder = model.PartySeller, offer, bid
	}

	pc := &model.PendingConfirmation{
		Key:          key,
		Contract:     contract,
		BidOrderID:   bid.ID,
		OfferOrderID: offer.ID,
		SmallerParty: smallerParty,
		SmallerOrder: smallerOrder.ID,
		LargerOrder:  largerOrder.ID,
		SmallerOwner: smallerOrder.Owner,
		LargerOwner:  largerOrder.Owner,
		SmallerQty:   smallerOrder.RemainingQty,
		LargerQty:    largerOrder.RemainingQty,
		Price:        offer.Price,
		State:        model.ConfirmationAwaitingSmaller,
		Deadline:     e.clock.Now().Add(e.cfg.Matching.QCSMDeadline),
	}
	e.confirmations[key] = pc
	e.confMu.Unlock()

	e.logger.Info("quantity confirmation opened",
		zap.String("key", key), zap.String("contract", contract),
		zap.String("smaller_order", pc.SmallerOrder), zap.Int64("smaller_qty", pc.SmallerQty),
		zap.Int64("larger_qty", pc.LargerQty))

	payload := model.ConfirmationRequestPayload{
		ConfirmationKey:     key,
		Contract:            contract,
		Owner:               pc.SmallerOwner,
		YourOrderID:         pc.SmallerOrder,
		CounterpartyOrderID: pc.LargerOrder,
		YourQty:             pc.SmallerQty,
		CounterpartyQty:     pc.LargerQty,
		AdditionalQty:       pc.LargerQty - pc.SmallerQty,
		Price:               pc.Price,
		Side:                smallerParty,
		Message:             "counterparty wants a larger quantity at your price — confirm to fill the difference",
		DeadlineSeconds:     int(e.cfg.Matching.QCSMDeadline.Seconds()),
	}
	ev := model.NewEvent(model.EventQuantityConfirmationRequest, payload)
	e.cache.Publish(ctx, ev)
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("failed to fan out confirmation request", zap.Error(err))
	}
	token := shortToken(pc.SmallerOrder)
	e.notify(ctx, pc.SmallerOwner, fmt.Sprintf(
		"Counterparty wants %d more at %.4f on order %s. Reply YES %s to fill or NO %s to decline.",
		pc.LargerQty-pc.SmallerQty, pc.Price, pc.SmallerOrder, token, token))
	return nil
}

// shortToken takes the leading hex characters of an order ID for use in a
// free-text reply command: long enough to disambiguate among concurrently
// pending confirmations, short enough to type back.
func shortToken(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}

// ResolveConfirmation handles an inbound accept/decline for a pending
// confirmation key, as routed by the Session Fan-Out or the messaging
// resolver.
func (e *Engine) ResolveConfirmation(ctx context.Context, key string, accept bool) error {
	e.confMu.Lock()
	pc, ok := e.confirmations[key]
	if !ok {
		e.confMu.Unlock()
		return apperrors.New(apperrors.CodeConfirmationUnknown, "no pending confirmation for key").WithDetail("key", key)
	}
	if pc.State != model.ConfirmationAwaitingSmaller {
		e.confMu.Unlock()
		return apperrors.New(apperrors.CodeConfirmationExpired, "confirmation already resolved").WithDetail("key", key)
	}
	delete(e.confirmations, key)
	e.confMu.Unlock()

	if !accept {
		return e.declineConfirmation(ctx, pc)
	}
	return e.acceptConfirmation(ctx, pc)
}

// ResolveConfirmationByOrderPrefix resolves the pending confirmation whose
// smaller-party order ID starts with prefix, as used by the messaging
// resolver's inbound "YES <hex-prefix>" / "NO <hex-prefix>" commands: the
// free-text channel cannot carry an opaque confirmation key, only a short
// token the sender can plausibly copy, so it addresses the order it was
// asked about instead.
func (e *Engine) ResolveConfirmationByOrderPrefix(ctx context.Context, prefix string, accept bool) error {
	e.confMu.Lock()
	var key string
	for k, pc := range e.confirmations {
		if strings.HasPrefix(pc.SmallerOrder, prefix) {
			key = k
			break
		}
	}
	e.confMu.Unlock()

	if key == "" {
		return apperrors.New(apperrors.CodeConfirmationUnknown, "no pending confirmation matches order prefix").WithDetail("prefix", prefix)
	}
	return e.ResolveConfirmation(ctx, key, accept)
}

func (e *Engine) acceptConfirmation(ctx context.Context, pc *model.PendingConfirmation) error {
	lock := e.lockFor(pc.Contract)
	lock.Lock()
	defer lock.Unlock()

	result, err := e.store.Trades.LiftAndExecute(ctx, pc.BidOrderID, pc.OfferOrderID, pc.SmallerOrder, pc.LargerQty, e.cfg.Matching.CommissionRate)
	if err != nil {
		return err
	}
	e.logger.Info("quantity confirmation accepted", zap.String("key", pc.Key))
	e.clearDeclined(pc.Contract, pc.BidOrderID, pc.OfferOrderID)
	e.afterTrade(ctx, pc.Contract, result)
	return nil
}

func (e *Engine) declineConfirmation(ctx context.Context, pc *model.PendingConfirmation) error {
	e.markDeclined(pc.Contract, pc.BidOrderID, pc.OfferOrderID)
	e.logger.Info("quantity confirmation declined", zap.String("key", pc.Key))

	ev := model.NewEvent(model.EventQuantityPartialFillDeclined, pc)
	e.cache.Publish(ctx, ev)
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("failed to fan out confirmation decline", zap.Error(err))
	}
	counterEv := model.NewEvent(model.EventQuantityCounterpartyDecline, pc)
	e.cache.Publish(ctx, counterEv)
	if err := e.bus.Publish(ctx, counterEv); err != nil {
		e.logger.Warn("failed to fan out counterparty decline notice", zap.Error(err))
	}
	e.notify(ctx, pc.SmallerOwner, fmt.Sprintf("Your partial-fill decision on order %s was recorded: no trade.", shortToken(pc.SmallerOrder)))
	e.notify(ctx, pc.LargerOwner, fmt.Sprintf("Counterparty declined the quantity request on order %s: no trade.", shortToken(pc.LargerOrder)))
	return nil
}

// runConfirmationSweeper times out confirmations past their deadline,
// treating a timeout identically to a decline: no trade, and the pair is
// added to the declined set so it isn't re-offered every tick.
func (e *Engine) runConfirmationSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.clock.Now()
			var due []*model.PendingConfirmation

			e.confMu.Lock()
			for key, pc := range e.confirmations {
				if pc.State == model.ConfirmationAwaitingSmaller && !now.Before(pc.Deadline) {
					pc.State = model.ConfirmationTimedOut
					due = append(due, pc)
					delete(e.confirmations, key)
				}
			}
			e.confMu.Unlock()

			for _, pc := range due {
				if err := e.declineConfirmation(ctx, pc); err != nil {
					e.logger.Warn("failed to process confirmation timeout", zap.String("key", pc.Key), zap.Error(err))
				}
			}
		}
	}
}

// declinedPair records the two order IDs behind a declined-set entry, so a
// later order mutation can find and drop every entry it appears in without
// re-deriving the confirmation key.
type declinedPair struct {
	bidID, offerID string
}

func (e *Engine) isDeclined(contract, bidID, offerID string) bool {
	e.declinedMu.Lock()
	defer e.declinedMu.Unlock()
	_, ok := e.declined[model.ConfirmationKey(contract, bidID, offerID)]
	return ok
}

func (e *Engine) markDeclined(contract, bidID, offerID string) {
	e.declinedMu.Lock()
	defer e.declinedMu.Unlock()
	e.declined[model.ConfirmationKey(contract, bidID, offerID)] = declinedPair{bidID: bidID, offerID: offerID}
}

// clearDeclined drops one pair's declined-set entry; called after a
// successful trade on that exact pair. Updates, cancellations and expiries
// go through ClearDeclinedForOrder instead.
func (e *Engine) clearDeclined(contract, bidID, offerID string) {
	e.declinedMu.Lock()
	defer e.declinedMu.Unlock()
	delete(e.declined, model.ConfirmationKey(contract, bidID, offerID))
}

// ClearDeclinedForOrder drops every declined-pair entry that references
// orderID on either side. An order whose price or quantity changed, or that
// was cancelled or expired, is no longer the same proposal a counterparty
// once turned down, so the pairing deserves a fresh look rather than staying
// suppressed forever.
func (e *Engine) ClearDeclinedForOrder(orderID string) {
	e.declinedMu.Lock()
	defer e.declinedMu.Unlock()
	for key, pair := range e.declined {
		if pair.bidID == orderID || pair.offerID == orderID {
			delete(e.declined, key)
		}
	}
}

package matching

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdoElHodaky/obcore/internal/model"
)

// alertThrottle bounds competitive bidding alerts to at most one per
// (contract, order) per matching interval, so a persistently tight spread
// doesn't spam both parties on every tick.
type alertThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newAlertThrottle() *alertThrottle {
	return &alertThrottle{limiters: make(map[string]*rate.Limiter)}
}

func (t *alertThrottle) allow(contract, orderID string, interval float64) bool {
	key := contract + ":" + orderID
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1/interval), 1)
		t.limiters[key] = l
	}
	return l.Allow()
}

// maybeAlert emits a competitive bidding alert to both top-of-book parties
// when the spread is positive but within the configured cap of the best
// bid, throttled per order.
func (e *Engine) maybeAlert(ctx context.Context, contract string, bestBid, bestOffer *model.Order) {
	spread := bestOffer.Price - bestBid.Price
	if spread <= 0 || bestBid.Price <= 0 {
		return
	}
	if spread/bestBid.Price > e.cfg.Matching.SpreadAlertCap {
		return
	}

	interval := e.cfg.Matching.MatchingInterval.Seconds()
	if interval <= 0 {
		interval = 1
	}

	for _, o := range []*model.Order{bestBid, bestOffer} {
		if !e.alerts.allow(contract, o.ID, interval) {
			continue
		}
		ev := model.NewEvent(model.EventNegotiationYourTurn, o.ToResponse())
		e.cache.Publish(ctx, ev)
		if err := e.bus.Publish(ctx, ev); err != nil {
			e.logger.Warn("failed to fan out competitive bidding alert", zap.Error(err))
		}
	}
}

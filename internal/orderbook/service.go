package orderbook

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/cache"
	"github.com/abdoElHodaky/obcore/internal/config"
	"github.com/abdoElHodaky/obcore/internal/eventbus"
	"github.com/abdoElHodaky/obcore/internal/model"
	"github.com/abdoElHodaky/obcore/internal/store"
)

// DeclinedClearer lets the Order Book Service tell the matching side that an
// order changed materially (price, quantity, cancellation, expiry), so any
// counterparty pairing it was previously declined against gets reconsidered
// instead of staying suppressed indefinitely.
type DeclinedClearer interface {
	ClearDeclinedForOrder(orderID string)
}

// Service is the Order Book Service: the single writer for order state. It
// logs every mutation, keeps a short-TTL mirror in front of the store for
// hot reads, and recomputes/broadcasts best prices after every change that
// could move them.
type Service struct {
	store   *store.Store
	cache   *cache.MarketCache
	mirror  *cache.Mirror
	bus     *eventbus.Bus
	logger  *zap.Logger
	cfg     *config.Config
	matcher DeclinedClearer

	best map[string]model.BestPrice
}

// New creates an OBS instance.
func New(st *store.Store, mc *cache.MarketCache, bus *eventbus.Bus, cfg *config.Config, logger *zap.Logger, matcher DeclinedClearer) *Service {
	return &Service{
		store:   st,
		cache:   mc,
		mirror:  cache.NewMirror(cfg.Matching.PerUserOrderBookMirrorTTL),
		bus:     bus,
		logger:  logger,
		cfg:     cfg,
		matcher: matcher,
		best:    make(map[string]model.BestPrice),
	}
}

// CreateOrder validates and persists a new order, then triggers the
// downstream cache invalidation, event publication, and match request.
func (s *Service) CreateOrder(ctx context.Context, req *CreateRequest) (*model.Order, error) {
	if err := ValidateCreate(req); err != nil {
		return nil, err
	}

	count, err := s.store.Orders.CountActiveByOwner(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	if count >= int64(s.cfg.Matching.MaxOrdersPerUser) {
		return nil, apperrors.New(apperrors.CodeLimitExceeded, "per-owner active order cap reached").
			WithDetail("cap", s.cfg.Matching.MaxOrdersPerUser)
	}

	contract, _ := model.Contract(req.MonthYear, req.Product)
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.cfg.Matching.OrderExpiryHours) * time.Hour)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	order := &model.Order{
		ID:           uuid.New().String(),
		Owner:        req.Owner,
		Contract:     contract,
		Side:         req.Side,
		Price:        req.Price,
		OriginalQty:  req.Qty,
		RemainingQty: req.Qty,
		Status:       model.OrderStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expiresAt,
	}

	if err := s.store.Orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID), zap.String("owner", order.Owner),
		zap.String("contract", order.Contract), zap.String("side", string(order.Side)),
		zap.Float64("price", order.Price), zap.Int64("qty", order.OriginalQty))

	s.invalidate(ctx, contract)
	s.publishOrderAndMarket(ctx, model.EventOrderCreated, order)
	if err := s.recomputeAndBroadcast(ctx, contract); err != nil {
		s.logger.Warn("best-price recompute failed after create", zap.Error(err))
	}
	if err := s.bus.RequestMatch(ctx, contract); err != nil {
		s.logger.Warn("failed to request match pass", zap.String("contract", contract), zap.Error(err))
	}

	return order, nil
}

// UpdateOrder applies a price/quantity/expiry change to an order the
// caller owns, then clears any declined-pairing memory tied to it so a
// materially different order gets a fresh look against prior counterparties.
func (s *Service) UpdateOrder(ctx context.Context, req *UpdateRequest) (*model.Order, error) {
	if err := ValidateUpdate(req); err != nil {
		return nil, err
	}

	existing, err := s.store.Orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing.Owner != req.Owner {
		return nil, apperrors.New(apperrors.CodeNotOwner, "order not owned by caller")
	}

	updated, err := s.store.Orders.UpdateMutableFields(ctx, req.OrderID, req.Price, req.Qty, req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order updated", zap.String("order_id", updated.ID), zap.String("owner", updated.Owner))

	s.matcher.ClearDeclinedForOrder(updated.ID)
	s.invalidate(ctx, updated.Contract)
	s.publishOrderAndMarket(ctx, model.EventOrderUpdated, updated)
	if err := s.recomputeAndBroadcast(ctx, updated.Contract); err != nil {
		s.logger.Warn("best-price recompute failed after update", zap.Error(err))
	}
	if err := s.bus.RequestMatch(ctx, updated.Contract); err != nil {
		s.logger.Warn("failed to request match pass", zap.String("contract", updated.Contract), zap.Error(err))
	}

	return updated, nil
}

// CancelOrder cancels an order the caller owns and clears any declined-
// pairing memory tied to it, since a cancelled order can never be
// rematched and shouldn't keep suppressing its old counterparties' IDs.
func (s *Service) CancelOrder(ctx context.Context, req *CancelRequest) (*model.Order, error) {
	if err := ValidateCancel(req); err != nil {
		return nil, err
	}

	existing, err := s.store.Orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing.Owner != req.Owner {
		return nil, apperrors.New(apperrors.CodeNotOwner, "order not owned by caller")
	}

	cancelled, err := s.store.Orders.Cancel(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", zap.String("order_id", cancelled.ID), zap.String("owner", cancelled.Owner))

	s.matcher.ClearDeclinedForOrder(cancelled.ID)
	s.invalidate(ctx, cancelled.Contract)
	s.publishOrderAndMarket(ctx, model.EventOrderCancelled, cancelled)
	if err := s.recomputeAndBroadcast(ctx, cancelled.Contract); err != nil {
		s.logger.Warn("best-price recompute failed after cancel", zap.Error(err))
	}

	return cancelled, nil
}

// GetUserOrders implements get_user_orders.
func (s *Service) GetUserOrders(ctx context.Context, owner string) ([]*model.Order, error) {
	return s.store.Orders.ListByOwner(ctx, owner)
}

// GetMarketData returns only ACTIVE, non-exhausted orders, bids sorted
// price-desc/time-asc, offers price-asc/time-asc.
func (s *Service) GetMarketData(ctx context.Context, contract string) (bids, offers []*model.Order, err error) {
	orders, err := s.activeOrders(ctx, contract)
	if err != nil {
		return nil, nil, err
	}
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
	return bids, offers, nil
}

// GetRecentTrades returns the most recent trades for a contract, newest first.
func (s *Service) GetRecentTrades(ctx context.Context, contract string, limit int) ([]*model.Trade, error) {
	return s.store.Trades.ListByContract(ctx, contract, limit)
}

// GetUserTrades returns the most recent trades an owner took part in, newest first.
func (s *Service) GetUserTrades(ctx context.Context, owner string, limit int) ([]*model.Trade, error) {
	return s.store.Trades.ListByOwner(ctx, owner, limit)
}

// GetAccountSummary rolls up an owner's open and filled notional across
// every order and trade they hold.
func (s *Service) GetAccountSummary(ctx context.Context, owner string) (*model.AccountSummary, error) {
	orders, err := s.store.Orders.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.store.Trades.AccountSummary(ctx, owner, orders)
}

// activeOrders reads through the process-local mirror, falling back to the
// store on a miss. Never consulted during trade execution — only for
// read-side market data; the matcher's candidate selection always re-reads
// the store directly.
func (s *Service) activeOrders(ctx context.Context, contract string) ([]*model.Order, error) {
	if cached, ok := s.mirror.Get(contract); ok {
		return cached, nil
	}
	orders, err := s.store.Orders.ListActiveByContract(ctx, contract)
	if err != nil {
		return nil, err
	}
	s.mirror.Set(contract, orders)
	s.cache.SetOrderBook(ctx, contract, orders)
	return orders, nil
}

func (s *Service) invalidate(ctx context.Context, contract string) {
	s.mirror.Invalidate(contract)
	s.cache.InvalidateOrderBook(ctx, contract)
}

func (s *Service) publish(ctx context.Context, ev model.Event) {
	s.cache.Publish(ctx, ev)
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event to internal bus", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// publishOrderAndMarket emits an order lifecycle event to its owner plus a
// market:update event for the contract's room, so subscribers watching the
// book (not just the owner) see it move. Distinct from market:price_changed,
// which only fires when the best bid/offer actually changes.
func (s *Service) publishOrderAndMarket(ctx context.Context, orderEventType model.EventType, order *model.Order) {
	resp := order.ToResponse()
	s.publish(ctx, model.NewEvent(orderEventType, resp))
	s.publish(ctx, model.NewEvent(model.EventMarketUpdate, resp))
}

// recomputeAndBroadcast compares the freshly computed best-price snapshot
// against the last known one and broadcasts market:price_changed only if
// either side changed.
func (s *Service) recomputeAndBroadcast(ctx context.Context, contract string) error {
	bids, offers, err := s.GetMarketData(ctx, contract)
	if err != nil {
		return err
	}

	var next model.BestPrice
	if len(bids) > 0 {
		p := bids[0].Price
		next.BestBid = &p
	}
	if len(offers) > 0 {
		p := offers[0].Price
		next.BestOffer = &p
	}

	prev := s.best[contract]
	s.cache.SetBestPrices(ctx, contract, next)
	if next.Equal(prev) {
		return nil
	}
	s.best[contract] = next

	payload := model.BestPriceChange{
		Contract:          contract,
		BestBid:           next.BestBid,
		BestOffer:         next.BestOffer,
		PreviousBestBid:   prev.BestBid,
		PreviousBestOffer: prev.BestOffer,
		BidChanged:        !float64PtrEqual(prev.BestBid, next.BestBid),
		OfferChanged:      !float64PtrEqual(prev.BestOffer, next.BestOffer),
		Timestamp:         time.Now(),
	}
	s.publish(ctx, model.NewEvent(model.EventMarketPriceChanged, payload))
	return nil
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

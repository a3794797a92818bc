package store

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// TradeRepository is the gorm-backed repository for Trade rows and the
// atomic trade-execution transaction.
type TradeRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTradeRepository creates a new TradeRepository.
func NewTradeRepository(db *gorm.DB, logger *zap.Logger) *TradeRepository {
	return &TradeRepository{db: db, logger: logger}
}

// ExecuteResult is the outcome of a single atomic trade execution.
type ExecuteResult struct {
	Trade          model.Trade
	BuyerOrder     model.Order
	SellerOrder    model.Order
	Classification model.FillClassification
}

// Execute runs the single-transaction trade commit: re-lock both orders,
// recompute qty/price, create the Trade row, decrement both orders'
// remaining_qty, and flip status to MATCHED on exhaustion. A database
// failure comes back as apperrors.CodeStoreUnavailable (Transient) so the
// caller can abort the pair and let the next tick retry; a pair that is no
// longer tradeable (an inactive order, a self-trade, nothing left to fill)
// comes back with its own CodeImmutable or CodeInvalidInput error.
func (r *TradeRepository) Execute(ctx context.Context, bidID, offerID string, commissionRate float64) (*ExecuteResult, error) {
	var out ExecuteResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bid, offer, err := LockBoth(tx, bidID, offerID)
		if err != nil {
			return err
		}
		if bid.Status != model.OrderStatusActive || offer.Status != model.OrderStatusActive {
			return apperrors.New(apperrors.CodeImmutable, "order no longer active")
		}
		if bid.Owner == offer.Owner {
			return apperrors.New(apperrors.CodeInvalidInput, "self-trade rejected")
		}

		qty := bid.RemainingQty
		if offer.RemainingQty < qty {
			qty = offer.RemainingQty
		}
		if qty <= 0 {
			return apperrors.New(apperrors.CodeInvalidInput, "no remaining quantity to match")
		}
		price := offer.Price
		commission := model.Commission(qty, price, commissionRate)

		trade := model.Trade{
			ID:          ksuid.New().String(),
			Contract:    offer.Contract,
			Price:       price,
			Qty:         qty,
			BuyerOrder:  bid.ID,
			SellerOrder: offer.ID,
			Buyer:       bid.Owner,
			Seller:      offer.Owner,
			Commission:  commission,
			CreatedAt:   time.Now(),
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}

		bid.RemainingQty -= qty
		offer.RemainingQty -= qty
		bid.UpdatedAt = time.Now()
		offer.UpdatedAt = time.Now()

		classification := model.FullMatch
		if bid.RemainingQty == 0 {
			bid.Status = model.OrderStatusMatched
		} else {
			classification = model.PartialFillBuyer
		}
		if offer.RemainingQty == 0 {
			offer.Status = model.OrderStatusMatched
		} else if classification == model.FullMatch {
			classification = model.PartialFillSeller
		}

		if err := tx.Save(bid).Error; err != nil {
			return err
		}
		if err := tx.Save(offer).Error; err != nil {
			return err
		}

		out = ExecuteResult{Trade: trade, BuyerOrder: *bid, SellerOrder: *offer, Classification: classification}
		return nil
	})

	if err != nil {
		if appErr := apperrors.GetErrorCode(err); appErr != "" {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "execute trade")
	}
	return &out, nil
}

// LiftAndExecute implements the QCSM accept path: atomically raises the
// smaller order's original_qty/remaining_qty to targetQty, then
// immediately executes the trade within the same re-lock.
func (r *TradeRepository) LiftAndExecute(ctx context.Context, bidID, offerID, smallerOrderID string, targetQty int64, commissionRate float64) (*ExecuteResult, error) {
	var out ExecuteResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bid, offer, err := LockBoth(tx, bidID, offerID)
		if err != nil {
			return err
		}
		if bid.Status != model.OrderStatusActive || offer.Status != model.OrderStatusActive {
			return apperrors.New(apperrors.CodeImmutable, "order no longer active")
		}

		var smaller *model.Order
		switch smallerOrderID {
		case bid.ID:
			smaller = bid
		case offer.ID:
			smaller = offer
		default:
			return apperrors.New(apperrors.CodeInvalidInput, "smaller order not part of pair")
		}
		smaller.OriginalQty = targetQty
		smaller.RemainingQty = targetQty
		smaller.UpdatedAt = time.Now()
		if err := tx.Save(smaller).Error; err != nil {
			return err
		}

		qty := bid.RemainingQty
		if offer.RemainingQty < qty {
			qty = offer.RemainingQty
		}
		price := offer.Price
		commission := model.Commission(qty, price, commissionRate)

		trade := model.Trade{
			ID:          ksuid.New().String(),
			Contract:    offer.Contract,
			Price:       price,
			Qty:         qty,
			BuyerOrder:  bid.ID,
			SellerOrder: offer.ID,
			Buyer:       bid.Owner,
			Seller:      offer.Owner,
			Commission:  commission,
			CreatedAt:   time.Now(),
		}
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}

		bid.RemainingQty -= qty
		offer.RemainingQty -= qty
		bid.UpdatedAt = time.Now()
		offer.UpdatedAt = time.Now()
		if bid.RemainingQty == 0 {
			bid.Status = model.OrderStatusMatched
		}
		if offer.RemainingQty == 0 {
			offer.Status = model.OrderStatusMatched
		}
		if err := tx.Save(bid).Error; err != nil {
			return err
		}
		if err := tx.Save(offer).Error; err != nil {
			return err
		}

		out = ExecuteResult{Trade: trade, BuyerOrder: *bid, SellerOrder: *offer, Classification: model.FullMatch}
		return nil
	})

	if err != nil {
		if appErr := apperrors.GetErrorCode(err); appErr != "" {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "lift and execute trade")
	}
	return &out, nil
}

// ListByContract returns the most recent trades for a contract, built with
// the raw-query Builder since this is a hot read path worth the index hint.
func (r *TradeRepository) ListByContract(ctx context.Context, contract string, limit int) ([]*model.Trade, error) {
	var trades []*model.Trade
	err := NewBuilder(r.db.WithContext(ctx), r.logger).
		Table("trades").
		UseIndex("idx_trades_contract").
		Where("contract = ?", contract).
		OrderBy("created_at desc").
		Limit(limit).
		Execute(&trades)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "list trades by contract")
	}
	return trades, nil
}

// ListByOwner returns the most recent trades involving owner as either
// buyer or seller, built with the raw-query Builder.
func (r *TradeRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*model.Trade, error) {
	var trades []*model.Trade
	err := NewBuilder(r.db.WithContext(ctx), r.logger).
		Table("trades").
		Where("buyer = ? OR seller = ?", owner, owner).
		OrderBy("created_at desc").
		Limit(limit).
		Execute(&trades)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "list trades by owner")
	}
	return trades, nil
}

// AccountSummary rolls up a user's open and filled notional and commission
// across every order and trade they hold.
func (r *TradeRepository) AccountSummary(ctx context.Context, owner string, orders []*model.Order) (*model.AccountSummary, error) {
	summary := &model.AccountSummary{Owner: owner}
	for _, o := range orders {
		if o.Owner != owner {
			continue
		}
		if o.IsLive() {
			summary.OpenOrders++
			summary.OpenNotional += float64(o.RemainingQty) * o.Price
		}
	}

	var trades []*model.Trade
	err := r.db.WithContext(ctx).Where("buyer = ? OR seller = ?", owner, owner).Find(&trades).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "account summary")
	}
	for _, t := range trades {
		summary.FilledNotional += float64(t.Qty) * t.Price
		summary.CommissionPaid += t.Commission
		summary.TradeCount++
	}
	return summary, nil
}

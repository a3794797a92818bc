package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// OrderRepository is the gorm-backed repository for Order rows. Every
// mutation that depends on the row's current state runs inside a
// transaction with a row lock, so concurrent writers never race past a
// stale read of status or quantity.
type OrderRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *gorm.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "create order")
	}
	return nil
}

// GetByID fetches a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found").WithDetail("order_id", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "get order")
	}
	return &order, nil
}

// ListActiveByContract returns every ACTIVE order with remaining_qty > 0
// for a contract.
func (r *OrderRepository) ListActiveByContract(ctx context.Context, contract string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("contract = ? AND status = ? AND remaining_qty > 0", contract, model.OrderStatusActive).
		Order("created_at asc").
		Find(&orders).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "list active orders")
	}
	return orders, nil
}

// ListActiveContracts returns the distinct set of contracts currently
// carrying at least one ACTIVE order, so the Matching Engine's periodic
// pass knows which order books to sweep without scanning the whole table
// contract by contract.
func (r *OrderRepository) ListActiveContracts(ctx context.Context) ([]string, error) {
	var contracts []string
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("status = ? AND remaining_qty > 0", model.OrderStatusActive).
		Distinct("contract").Pluck("contract", &contracts).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "list active contracts")
	}
	return contracts, nil
}

// ListByOwner returns every order owned by owner.
func (r *OrderRepository) ListByOwner(ctx context.Context, owner string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).Where("owner = ?", owner).Order("created_at desc").Find(&orders).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "list orders by owner")
	}
	return orders, nil
}

// CountActiveByOwner supports enforcing the per-owner active-order cap.
func (r *OrderRepository) CountActiveByOwner(ctx context.Context, owner string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("owner = ? AND status = ?", owner, model.OrderStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "count active orders")
	}
	return count, nil
}

// UpdateMutableFields applies a price/qty/expiry mutation, only valid
// while the order is ACTIVE.
func (r *OrderRepository) UpdateMutableFields(ctx context.Context, orderID string, price *float64, qty *int64, expiresAt *time.Time) (*model.Order, error) {
	var updated *model.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.Status != model.OrderStatusActive {
			return apperrors.New(apperrors.CodeImmutable, "order is not active")
		}
		if price != nil {
			order.Price = *price
		}
		if qty != nil {
			order.OriginalQty = *qty
			if order.RemainingQty > *qty {
				order.RemainingQty = *qty
			}
		}
		if expiresAt != nil {
			order.ExpiresAt = *expiresAt
		}
		order.UpdatedAt = time.Now()
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		updated = &order
		return nil
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "update order")
	}
	return updated, nil
}

// Cancel transitions an ACTIVE order to CANCELLED.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	var updated *model.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.Status != model.OrderStatusActive {
			return apperrors.New(apperrors.CodeImmutable, "order is not active")
		}
		order.Status = model.OrderStatusCancelled
		order.UpdatedAt = time.Now()
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		updated = &order
		return nil
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "cancel order")
	}
	return updated, nil
}

// ExpireDue transitions every ACTIVE order whose expires_at has passed to
// EXPIRED and returns their IDs, so the caller can also drop any matching
// state that referenced them (a declined pairing involving an order that no
// longer trades has nothing left to suppress).
func (r *OrderRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("status = ? AND expires_at <= ?", model.OrderStatusActive, now).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "expire due orders")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id IN ? AND status = ?", ids, model.OrderStatusActive).
		Updates(map[string]interface{}{"status": model.OrderStatusExpired, "updated_at": now}).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "expire due orders")
	}
	return ids, nil
}

// LockBoth fetches bid and offer rows FOR UPDATE inside an existing
// transaction, re-reading the authoritative quantities rather than trusting
// any cache — the cache can lag a concurrent write, the row lock cannot.
func LockBoth(tx *gorm.DB, bidID, offerID string) (bid, offer *model.Order, err error) {
	var rows []model.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []string{bidID, offerID}).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) != 2 {
		return nil, nil, fmt.Errorf("expected 2 orders, locked %d", len(rows))
	}
	for i := range rows {
		switch rows[i].ID {
		case bidID:
			bid = &rows[i]
		case offerID:
			offer = &rows[i]
		}
	}
	if bid == nil || offer == nil {
		return nil, nil, fmt.Errorf("order row missing after lock")
	}
	return bid, offer, nil
}

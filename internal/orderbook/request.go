// Package orderbook implements the Order Book Service: the single writer
// for order state, emitting lifecycle events and maintaining per-contract
// best-price snapshots.
package orderbook

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// CreateRequest is the external order request schema, validated with
// struct tags rather than hand-written checks.
type CreateRequest struct {
	Owner     string     `validate:"required"`
	Side      model.OrderSide `validate:"required,oneof=BID OFFER"`
	Price     float64    `validate:"required,gt=0"`
	MonthYear string     `validate:"required"`
	Product   string     `validate:"required,min=2"`
	Qty       int64      `validate:"required,gt=0"`
	ExpiresAt *time.Time
}

// UpdateRequest carries the optional mutable fields for update_order.
type UpdateRequest struct {
	Owner     string
	OrderID   string `validate:"required"`
	Price     *float64
	Qty       *int64 `validate:"omitempty,gt=0"`
	ExpiresAt *time.Time
}

// CancelRequest identifies the order to cancel.
type CancelRequest struct {
	Owner   string `validate:"required"`
	OrderID string `validate:"required"`
}

var validate = validator.New()

// ValidateCreate runs struct-tag validation plus a contract-identifier
// well-formedness check.
func ValidateCreate(req *CreateRequest) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid order request").
			WithDetail("validation", err.Error())
	}
	if _, ok := model.Contract(req.MonthYear, req.Product); !ok {
		return apperrors.New(apperrors.CodeInvalidInput, "malformed contract identifier").
			WithDetail("monthyear", req.MonthYear).WithDetail("product", req.Product)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return apperrors.New(apperrors.CodeInvalidInput, "expires_at must be in the future")
	}
	return nil
}

// ValidateUpdate runs struct-tag validation on an update request.
func ValidateUpdate(req *UpdateRequest) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid update request")
	}
	return nil
}

// ValidateCancel runs struct-tag validation on a cancel request.
func ValidateCancel(req *CancelRequest) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "invalid cancel request")
	}
	return nil
}

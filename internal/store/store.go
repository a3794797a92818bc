package store

import (
	"context"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// Store is the facade the rest of the core depends on: the three
// repositories plus the circuit breaker guarding the periodic match pass's
// reads, so a Postgres blip degrades to "skip this tick" instead of a
// cascading retry storm.
type Store struct {
	Orders  *OrderRepository
	Trades  *TradeRepository
	Users   *UserRepository
	breaker *gobreaker.CircuitBreaker
	db      *gorm.DB
	logger  *zap.Logger
}

// New wires a Store on top of an open gorm connection.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		Orders:  NewOrderRepository(db, logger),
		Trades:  NewTradeRepository(db, logger),
		Users:   NewUserRepository(db, logger),
		breaker: NewBreaker("store.periodic-read", logger),
		db:      db,
		logger:  logger,
	}
}

// Ping checks the underlying database connection for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ListActiveByContractGuarded wraps ListActiveByContract in the circuit
// breaker for the Matching Engine's periodic pass; an on-demand pass can
// call the repository directly since it is already scoped to a single
// contract and does not need protection from cascading Postgres failures
// across every contract on a tick.
func (s *Store) ListActiveByContractGuarded(ctx context.Context, contract string) ([]*model.Order, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.Orders.ListActiveByContract(ctx, contract)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "store circuit open")
		}
		return nil, err
	}
	return result.([]*model.Order), nil
}

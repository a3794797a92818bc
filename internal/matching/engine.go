// Package matching implements the Matching Engine: the periodic and
// on-demand passes that select best-priced bid/offer candidates per
// contract, execute trades, and run the Pending Quantity Confirmation state
// machine for quantity-mismatched crossing pairs. Each contract's book is
// re-read from the store on every pass rather than held in an in-memory
// heap, since Postgres is the source of truth and must stay consistent
// under concurrent writers.
package matching

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/cache"
	"github.com/abdoElHodaky/obcore/internal/clock"
	"github.com/abdoElHodaky/obcore/internal/config"
	"github.com/abdoElHodaky/obcore/internal/eventbus"
	"github.com/abdoElHodaky/obcore/internal/model"
	"github.com/abdoElHodaky/obcore/internal/store"
)

// Notifier is the minimal outbound interface the Matching Engine uses to
// best-effort notify parties through the External Messaging Sink. Kept as a
// narrow interface here, rather than importing internal/messaging directly,
// since the messaging resolver already depends on *Engine and Go forbids
// the reverse import.
type Notifier interface {
	Send(ctx context.Context, recipient, text string) bool
}

// Engine owns the per-contract matching loop and the in-memory QCSM state
// (confirmations, declined pairs, alert throttling). This state is
// deliberately transient: a restart simply drops outstanding confirmations
// rather than risk them going stale against a persistent store that may
// have moved on.
type Engine struct {
	store    *store.Store
	cache    *cache.MarketCache
	bus      *eventbus.Bus
	cfg      *config.Config
	logger   *zap.Logger
	clock    clock.Clock
	pool     *ants.Pool
	notifier Notifier

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	confMu        sync.Mutex
	confirmations map[string]*model.PendingConfirmation

	declinedMu sync.Mutex
	declined   map[string]declinedPair

	alerts *alertThrottle
}

// New constructs an Engine. The configured worker pool size bounds the
// number of contracts that may run an on-demand pass concurrently, so one
// contract's match loop never starves another's.
func New(st *store.Store, mc *cache.MarketCache, bus *eventbus.Bus, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*Engine, error) {
	pool, err := ants.NewPool(cfg.Matching.WorkerPoolSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:         st,
		cache:         mc,
		bus:           bus,
		cfg:           cfg,
		logger:        logger,
		clock:         clk,
		pool:          pool,
		locks:         make(map[string]*sync.Mutex),
		confirmations: make(map[string]*model.PendingConfirmation),
		declined:      make(map[string]declinedPair),
		alerts:        newAlertThrottle(),
	}, nil
}

// Close releases the worker pool.
func (e *Engine) Close() { e.pool.Release() }

// SetNotifier wires the External Messaging Sink for best-effort outbound
// notifications. Optional: a nil notifier means QCSM and trade
// notifications travel over the cache/event-bus channels only.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

func (e *Engine) notify(ctx context.Context, recipient, text string) {
	if e.notifier == nil {
		return
	}
	if !e.notifier.Send(ctx, recipient, text) {
		e.logger.Debug("best-effort notification failed", zap.String("recipient", recipient))
	}
}

// Run starts the periodic pass, the on-demand dispatcher, and the QCSM
// deadline sweeper; it blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	matchReqs, err := e.bus.SubscribeMatchRequests(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.runPeriodic(ctx) }()
	go func() { defer wg.Done(); e.runOnDemand(ctx, matchReqs) }()
	go func() { defer wg.Done(); e.runConfirmationSweeper(ctx) }()
	wg.Wait()
	return nil
}

// runPeriodic ticks on the configured matching interval: skip entirely if
// the cache reports no active orders, otherwise sweep every contract
// carrying active orders through the circuit-breaker-guarded store read.
func (e *Engine) runPeriodic(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Matching.MatchingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.cache.HasActiveOrders(ctx) {
				continue
			}
			contracts, err := e.store.Orders.ListActiveContracts(ctx)
			if err != nil {
				e.logger.Warn("periodic pass: failed to list active contracts", zap.Error(err))
				continue
			}
			for _, contract := range contracts {
				if err := e.matchContractGuarded(ctx, contract); err != nil {
					e.logger.Warn("periodic match pass failed", zap.String("contract", contract), zap.Error(err))
				}
			}
			e.cache.RecordMatchRun(ctx, e.clock.Now())
		}
	}
}

// runOnDemand consumes the per-contract trigger the Order Book Service
// raises after every order write. Each contract's pass is submitted to the
// worker pool so one contract's match loop never blocks another's.
func (e *Engine) runOnDemand(ctx context.Context, contracts <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case contract, ok := <-contracts:
			if !ok {
				return
			}
			c := contract
			if err := e.pool.Submit(func() {
				if err := e.MatchContract(ctx, c); err != nil {
					e.logger.Warn("on-demand match pass failed", zap.String("contract", c), zap.Error(err))
				}
			}); err != nil {
				e.logger.Warn("failed to submit match pass to worker pool", zap.String("contract", c), zap.Error(err))
			}
		}
	}
}

func (e *Engine) lockFor(contract string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[contract]
	if !ok {
		l = &sync.Mutex{}
		e.locks[contract] = l
	}
	return l
}

// matchContractGuarded wraps MatchContract in the circuit breaker's read
// path for the periodic pass only, so a store outage backs off the sweep
// instead of hammering a database that is already struggling.
func (e *Engine) matchContractGuarded(ctx context.Context, contract string) error {
	if _, err := e.store.ListActiveByContractGuarded(ctx, contract); err != nil {
		return err
	}
	return e.MatchContract(ctx, contract)
}

// MatchContract runs the serialized matching loop for one contract: at
// most one trade or QCSM transition is committed per contract at any
// instant, since the periodic and on-demand paths can race on the same
// contract otherwise. Driven to a fixed point — repeated steps until no
// further progress is possible in this pass.
func (e *Engine) MatchContract(ctx context.Context, contract string) error {
	lock := e.lockFor(contract)
	lock.Lock()
	defer lock.Unlock()

	for {
		progressed, err := e.step(ctx, contract)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/abdoElHodaky/obcore/internal/model"
)

// Mirror is a short-TTL in-process order-book cache sitting in front of the
// Redis tier, trading a small staleness window for avoiding a Redis round
// trip on every hot-path read.
type Mirror struct {
	books *gocache.Cache
	mu    sync.Mutex
}

// NewMirror creates a Mirror with the given TTL.
func NewMirror(ttl time.Duration) *Mirror {
	return &Mirror{books: gocache.New(ttl, 2*ttl)}
}

// Set stores the active-order snapshot for a contract.
func (m *Mirror) Set(contract string, orders []*model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books.SetDefault(contract, orders)
}

// Get returns the mirrored snapshot, if still fresh.
func (m *Mirror) Get(contract string) ([]*model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, found := m.books.Get(contract)
	if !found {
		return nil, false
	}
	return v.([]*model.Order), true
}

// Invalidate drops the mirrored snapshot for a contract; called from the
// Order Book Service's create, update and cancel paths. Trades committed by
// the Matching Engine do not invalidate it, so after a trade a snapshot can
// stay stale until its TTL expires.
func (m *Mirror) Invalidate(contract string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books.Delete(contract)
}

package service

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
)

// accountGuard serializes check-then-append sequences per clinic without
// blocking operations on other clinics. The database row lock remains the
// backstop; this guard keeps contention out of the storage layer and
// gives waiters a context-aware timeout.
//
// Slots are never evicted: a released slot may be re-acquired at any
// time, so the map holds one channel per clinic ever seen by this
// process. That keeps acquire race-free at a cost of a few dozen bytes
// per clinic.
type accountGuard struct {
	mu    sync.Mutex
	locks map[snowflake.ID]chan struct{}
}

func newAccountGuard() *accountGuard {
	return &accountGuard{
		locks: make(map[snowflake.ID]chan struct{}),
	}
}

func (g *accountGuard) slot(clinicID snowflake.ID) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.locks[clinicID]
	if !ok {
		slot = make(chan struct{}, 1)
		g.locks[clinicID] = slot
	}
	return slot
}

// acquire blocks until the clinic slot is free or ctx expires. A timeout
// surfaces as ErrAccountBusy; the caller must re-check idempotently
// before retrying.
func (g *accountGuard) acquire(ctx context.Context, clinicID snowflake.ID) (func(), error) {
	slot := g.slot(clinicID)

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, billingdomain.ErrAccountBusy
	}
}

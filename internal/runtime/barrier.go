package runtime

import (
	"context"
	"fmt"
	"sync"
)

// BarrierKey identifies one fan-out's barrier: the batch-start state that
// dispatched the branches plus the execution epoch, so repeated runs of the
// same machine never share a latch.
type BarrierKey struct {
	StartID string
	Epoch   string
}

// latch is a countdown latch: it opens once Arrive has been called as many
// times as branches were dispatched.
type latch struct {
	remaining int
	done      chan struct{}
	mu        sync.Mutex
}

// barrierSet tracks the open latches of a run, keyed by (batch-start id,
// epoch). The join state advances only after the latch for its fan-out
// opens.
type barrierSet struct {
	mu      sync.Mutex
	latches map[BarrierKey]*latch
}

func newBarrierSet() *barrierSet {
	return &barrierSet{latches: make(map[BarrierKey]*latch)}
}

// Open registers a latch for a fan-out that dispatched n branches.
func (b *barrierSet) Open(key BarrierKey, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.latches[key]; exists {
		return fmt.Errorf("barrier %s/%s already open", key.StartID, key.Epoch)
	}
	b.latches[key] = &latch{remaining: n, done: make(chan struct{})}
	return nil
}

// Arrive records one branch reaching the join. The latch opens on the final
// arrival.
func (b *barrierSet) Arrive(key BarrierKey) error {
	b.mu.Lock()
	l, ok := b.latches[key]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("arrival at unknown barrier %s/%s", key.StartID, key.Epoch)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining <= 0 {
		return fmt.Errorf("barrier %s/%s: more arrivals than dispatched branches", key.StartID, key.Epoch)
	}
	l.remaining--
	if l.remaining == 0 {
		close(l.done)
	}
	return nil
}

// Wait blocks until every dispatched branch has arrived or the context is
// cancelled. The latch is discarded afterwards.
func (b *barrierSet) Wait(ctx context.Context, key BarrierKey) error {
	b.mu.Lock()
	l, ok := b.latches[key]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("wait on unknown barrier %s/%s", key.StartID, key.Epoch)
	}

	defer func() {
		b.mu.Lock()
		delete(b.latches, key)
		b.mu.Unlock()
	}()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

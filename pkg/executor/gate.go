package executor

import (
	"context"
	"sync"
)

// gate bounds the number of environment runs in flight across all tasks.
// Waiting priority requests are admitted before waiting normal ones.
type gate struct {
	mu              sync.Mutex
	cond            *sync.Cond
	limit           int
	inFlight        int
	priorityWaiting int
}

func newGate(limit int) *gate {
	if limit < 1 {
		limit = 1
	}
	g := &gate{limit: limit}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// acquire blocks until a slot is free or ctx is done.
func (g *gate) acquire(ctx context.Context, priority bool) error {
	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	if priority {
		g.priorityWaiting++
		defer func() {
			g.priorityWaiting--
			g.cond.Broadcast()
		}()
	}

	for g.inFlight >= g.limit || (!priority && g.priorityWaiting > 0) {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	g.inFlight++
	return nil
}

func (g *gate) release() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

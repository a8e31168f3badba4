package session

import (
	"context"
	"sync"
)

// Gate lets one holder through at a time and wakes waiters in arrival order.
type Gate struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// Acquire blocks until the caller holds the gate or ctx is done. A caller
// whose ctx ends after it was handed the gate passes it on before returning.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	for i, x := range g.waiters {
		if x == w {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			g.mu.Unlock()
			return ctx.Err()
		}
	}
	g.mu.Unlock()
	g.Release()
	return ctx.Err()
}

// Release hands the gate to the oldest waiter, or marks it idle.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) == 0 {
		g.busy = false
		return
	}
	next := g.waiters[0]
	g.waiters[0] = nil
	g.waiters = g.waiters[1:]
	close(next)
}

// Waiting is the number of queued callers.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

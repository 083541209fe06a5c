package pipeline

// guard.go keeps at most one pipeline run active per process.
//
// Runs triggered by the scheduler and by the HTTP API share one guard. A
// second trigger while a run is active fails fast with ErrRunInProgress
// rather than queueing, matching a one-active-run orchestrator setting.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when a run is already active.
var ErrRunInProgress = errors.New("a mart run is already in progress")

// RunGuard is a single-slot semaphore.
type RunGuard struct {
	slot chan struct{}

	mu      sync.RWMutex
	runDate string
	since   time.Time
}

// NewRunGuard creates an unlocked guard.
func NewRunGuard() *RunGuard {
	return &RunGuard{slot: make(chan struct{}, 1)}
}

// TryAcquire takes the slot for runDate without blocking.
// Returns false if another run holds it.
func (g *RunGuard) TryAcquire(runDate string) bool {
	select {
	case g.slot <- struct{}{}:
		g.mu.Lock()
		g.runDate = runDate
		g.since = time.Now()
		g.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees the slot. Must be called exactly once per successful TryAcquire.
func (g *RunGuard) Release() {
	g.mu.Lock()
	g.runDate = ""
	g.since = time.Time{}
	g.mu.Unlock()

	<-g.slot
}

// Active reports whether a run holds the slot, and for which date.
func (g *RunGuard) Active() (runDate string, since time.Time, active bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.runDate, g.since, len(g.slot) > 0
}

// WaitForDrain blocks until no run is active or ctx is done.
// Used for graceful shutdown so an in-flight load can finish.
func (g *RunGuard) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, _, active := g.Active(); !active {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

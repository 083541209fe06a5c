package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunGuard_AcquireRelease(t *testing.T) {
	g := NewRunGuard()

	if _, _, active := g.Active(); active {
		t.Fatal("new guard is active")
	}
	if !g.TryAcquire("2025-12-01") {
		t.Fatal("first TryAcquire failed")
	}
	date, since, active := g.Active()
	if !active || date != "2025-12-01" || since.IsZero() {
		t.Errorf("Active() = %q, %v, %v", date, since, active)
	}
	if g.TryAcquire("2025-12-02") {
		t.Error("second TryAcquire succeeded while held")
	}

	g.Release()

	if _, _, active := g.Active(); active {
		t.Error("guard still active after Release")
	}
	if !g.TryAcquire("2025-12-02") {
		t.Error("TryAcquire failed after Release")
	}
	g.Release()
}

func TestRunGuard_ConcurrentTryAcquire(t *testing.T) {
	g := NewRunGuard()
	var won atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("2025-12-01") {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := won.Load(); got != 1 {
		t.Errorf("%d goroutines acquired the guard, want 1", got)
	}
}

func TestRunGuard_WaitForDrain(t *testing.T) {
	g := NewRunGuard()
	g.TryAcquire("2025-12-01")

	go func() {
		time.Sleep(50 * time.Millisecond)
		g.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}
}

func TestRunGuard_WaitForDrainTimeout(t *testing.T) {
	g := NewRunGuard()
	g.TryAcquire("2025-12-01")
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.WaitForDrain(ctx); err != context.DeadlineExceeded {
		t.Errorf("WaitForDrain() error = %v, want DeadlineExceeded", err)
	}
}

package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAllUnits(t *testing.T) {
	p := NewPool(3)
	var mu sync.Mutex
	seen := make(map[int]bool)

	err := p.Run(context.Background(), 10, func(ctx context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seen) != 10 {
		t.Fatalf("ran %d units, want 10", len(seen))
	}
}

func TestRunRespectsLimit(t *testing.T) {
	p := NewPool(2)
	var inFlight, peak int32

	err := p.Run(context.Background(), 8, func(ctx context.Context, i int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRunWaitsForStartedUnitsOnFailure(t *testing.T) {
	p := NewPool(3)
	boom := errors.New("boom")
	var finished int32

	err := p.Run(context.Background(), 3, func(ctx context.Context, i int) error {
		if i == 0 {
			return boom
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&finished, 1)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if got := atomic.LoadInt32(&finished); got != 2 {
		t.Fatalf("finished units = %d, want 2: barrier returned before in-flight units settled", got)
	}
}

func TestRunStopsDispatchAfterFailure(t *testing.T) {
	p := NewPool(1)
	var started int32

	err := p.Run(context.Background(), 5, func(ctx context.Context, i int) error {
		atomic.AddInt32(&started, 1)
		return errors.New("provider down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&started); got != 1 {
		t.Fatalf("started units = %d, want 1", got)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	p := NewPool(2)
	err := p.Run(context.Background(), 2, func(ctx context.Context, i int) error {
		if i == 1 {
			panic("nil transcript")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPool(2).Run(ctx, 3, func(ctx context.Context, i int) error {
		t.Fatal("no unit should start on a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

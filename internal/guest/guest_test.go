package guest

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestGate_BoundaryAtLimit(t *testing.T) {
	ctx := context.Background()
	gate := NewPolicy(NewMemoryCounter(), 5).ForDevice("dev-1")

	for i := 1; i <= 5; i++ {
		reached, err := gate.HasReachedLimit(ctx)
		if err != nil {
			t.Fatalf("has reached: %v", err)
		}
		if reached {
			t.Fatalf("limit reached before answer %d", i)
		}
		n, err := gate.Increment(ctx)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != i {
			t.Fatalf("Increment = %d, want %d", n, i)
		}
	}

	reached, _ := gate.HasReachedLimit(ctx)
	if !reached {
		t.Fatal("expected limit reached after 5 answers")
	}
	n, err := gate.Increment(ctx)
	if !errors.Is(err, ErrLimitReached) {
		t.Fatalf("Increment past limit = %d, %v; want ErrLimitReached", n, err)
	}
	if got, _ := gate.Answered(ctx); got != 5 {
		t.Errorf("Answered = %d after refused increment, want 5", got)
	}
}

func TestGate_DevicesAreIndependent(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(NewMemoryCounter(), 1)
	_, _ = p.ForDevice("a").Increment(ctx)

	if reached, _ := p.ForDevice("b").HasReachedLimit(ctx); reached {
		t.Error("device b should be unaffected by device a")
	}
}

func TestNewPolicy_DefaultLimit(t *testing.T) {
	if got := NewPolicy(NewMemoryCounter(), 0).Limit(); got != DefaultLimit {
		t.Errorf("Limit = %d, want %d", got, DefaultLimit)
	}
}

func TestMemoryCounter_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Increment(ctx, "dev", 0)
		}()
	}
	wg.Wait()
	if n, _ := c.Count(ctx, "dev"); n != 50 {
		t.Errorf("Count = %d, want 50", n)
	}
}

func TestMemoryCounter_ConcurrentIncrementsStopAtLimit(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		refused int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Increment(ctx, "dev", 5); errors.Is(err, ErrLimitReached) {
				mu.Lock()
				refused++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if n, _ := c.Count(ctx, "dev"); n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}
	if refused != 15 {
		t.Errorf("refused = %d, want 15", refused)
	}
}

func TestIsGuestSession(t *testing.T) {
	if !IsGuestSession("guest_abc") {
		t.Error("guest_abc should be a guest session")
	}
	if IsGuestSession("abc") {
		t.Error("abc should not be a guest session")
	}
}

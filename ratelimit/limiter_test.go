package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(limit, time.Minute)
	l.now = clock.Now
	return l, clock
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	if l.limit != DefaultLimit {
		t.Fatalf("limit = %d, want %d", l.limit, DefaultLimit)
	}
	if l.period != DefaultWindow {
		t.Fatalf("period = %v, want %v", l.period, DefaultWindow)
	}
}

func TestAllow_ThresholdWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(10)

	for i := 0; i < 10; i++ {
		if !l.Allow("sess-1") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow("sess-1") {
		t.Fatal("11th call in the window should be denied")
	}
	if l.Allow("sess-1") {
		t.Fatal("calls stay denied until the window expires")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	l, clock := newTestLimiter(2)

	l.Allow("sess-1")
	l.Allow("sess-1")
	if l.Allow("sess-1") {
		t.Fatal("should be denied after exhausting the window")
	}

	clock.Advance(59 * time.Second)
	if l.Allow("sess-1") {
		t.Fatal("should still be denied before the window elapses")
	}

	clock.Advance(time.Second)
	if !l.Allow("sess-1") {
		t.Fatal("should be allowed once the window elapses")
	}
}

func TestAllow_DeniedHitsDoNotExtendWindow(t *testing.T) {
	l, clock := newTestLimiter(1)

	l.Allow("sess-1")
	clock.Advance(30 * time.Second)
	l.Allow("sess-1") // denied
	clock.Advance(30 * time.Second)

	if !l.Allow("sess-1") {
		t.Fatal("window should run from the first hit only")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1)

	if !l.Allow("a") {
		t.Fatal("a should be allowed")
	}
	if !l.Allow("b") {
		t.Fatal("b should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("a should be denied")
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1)

	l.Allow("sess-reset")
	if l.Allow("sess-reset") {
		t.Fatal("should be denied")
	}

	l.Reset("sess-reset")

	if !l.Allow("sess-reset") {
		t.Fatal("should be allowed after reset")
	}
}

func TestSweepEvictsExpiredWindows(t *testing.T) {
	l, clock := newTestLimiter(5)

	for _, k := range []string{"a", "b", "c"} {
		l.Allow(k)
	}
	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	clock.Advance(2 * time.Minute)
	l.Allow("d")

	if l.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1", l.Len())
	}
}

func TestAdmit(t *testing.T) {
	l, _ := newTestLimiter(1)

	ok, err := l.Admit(context.Background(), "sess-1")
	if err != nil || !ok {
		t.Fatalf("Admit = %v, %v", ok, err)
	}
	ok, err = l.Admit(context.Background(), "sess-1")
	if err != nil || ok {
		t.Fatalf("Admit = %v, %v", ok, err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l, _ := newTestLimiter(100)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("sess-concurrent")
		}()
	}

	wg.Wait()
	close(allowed)

	trueCount := 0
	for v := range allowed {
		if v {
			trueCount++
		}
	}

	// The clock is frozen, so exactly the limit gets through.
	if trueCount != 100 {
		t.Fatalf("expected 100 allowed, got %d", trueCount)
	}
}

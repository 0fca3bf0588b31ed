package server

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/storefront/internal/commerce/commercetest"
	"github.com/danmuck/storefront/internal/store"
	"github.com/danmuck/storefront/internal/testutil/testlog"
	"github.com/google/uuid"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestSessions(t *testing.T, limits SessionLimits) (*Sessions, *fakeClock, *store.Memory) {
	t.Helper()
	clock := &fakeClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	kv := store.NewMemory()
	s := NewSessions(commercetest.NewFake(commercetest.Product("P1", 450)), kv, limits)
	s.now = clock.now
	return s, clock, kv
}

func TestSessionLimitsDefaults(t *testing.T) {
	testlog.Start(t)
	s := NewSessions(commercetest.NewFake(), nil, SessionLimits{})
	got := s.Limits()
	if got.IdleTTL != DefaultSessionIdleTTL || got.Max != DefaultMaxSessions {
		t.Fatalf("limits = %+v", got)
	}
	if s.sweepInterval() != maxSweepInterval {
		t.Fatalf("sweep interval = %s", s.sweepInterval())
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	testlog.Start(t)
	s, clock, _ := newTestSessions(t, SessionLimits{IdleTTL: time.Minute, Max: 10})
	ctx := context.Background()

	stale, created := s.Open("")
	if !created {
		t.Fatalf("expected a new session")
	}
	if err := stale.Cart.AddItem(ctx, "P1", 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cartID := stale.Cart.CartID()

	clock.advance(30 * time.Second)
	fresh, _ := s.Open("")
	clock.advance(45 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := s.Get(stale.ID); ok {
		t.Fatalf("idle session %s still registered", stale.ID)
	}
	if _, ok := s.Get(fresh.ID); !ok {
		t.Fatalf("active session %s evicted", fresh.ID)
	}

	back, created := s.Open(stale.ID)
	if !created || back == stale {
		t.Fatalf("expected a rebuilt session")
	}
	if err := back.Cart.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if back.Cart.CartID() != cartID {
		t.Fatalf("cart id = %q, want %q", back.Cart.CartID(), cartID)
	}
}

func TestOpenKeepsSessionAlive(t *testing.T) {
	testlog.Start(t)
	s, clock, _ := newTestSessions(t, SessionLimits{IdleTTL: time.Minute, Max: 10})

	sess, _ := s.Open("")
	for i := 0; i < 5; i++ {
		clock.advance(40 * time.Second)
		if _, created := s.Open(sess.ID); created {
			t.Fatalf("session recreated on touch %d", i)
		}
	}
	if n := s.Sweep(); n != 0 {
		t.Fatalf("swept %d, want 0", n)
	}
	if !sess.LastUsed().Equal(clock.at) {
		t.Fatalf("last used = %s, want %s", sess.LastUsed(), clock.at)
	}
}

func TestOpenEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	testlog.Start(t)
	s, clock, _ := newTestSessions(t, SessionLimits{IdleTTL: time.Hour, Max: 2})

	first, _ := s.Open("")
	clock.advance(time.Second)
	second, _ := s.Open("")
	clock.advance(time.Second)
	s.Open(first.ID)
	clock.advance(time.Second)

	third, created := s.Open(uuid.NewString())
	if !created {
		t.Fatalf("expected a new session")
	}
	if s.Len() != 2 {
		t.Fatalf("sessions = %d, want 2", s.Len())
	}
	if _, ok := s.Get(second.ID); ok {
		t.Fatalf("least recently used session %s kept", second.ID)
	}
	for _, id := range []string{first.ID, third.ID} {
		if _, ok := s.Get(id); !ok {
			t.Fatalf("session %s evicted", id)
		}
	}
}

func TestCapacityPrefersIdleSessions(t *testing.T) {
	testlog.Start(t)
	s, clock, _ := newTestSessions(t, SessionLimits{IdleTTL: time.Minute, Max: 3})

	a, _ := s.Open("")
	b, _ := s.Open("")
	clock.advance(2 * time.Minute)
	c, _ := s.Open("")
	d, _ := s.Open("")

	if s.Len() != 2 {
		t.Fatalf("sessions = %d, want 2", s.Len())
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, ok := s.Get(id); ok {
			t.Fatalf("idle session %s kept", id)
		}
	}
	for _, id := range []string{c.ID, d.ID} {
		if _, ok := s.Get(id); !ok {
			t.Fatalf("session %s evicted", id)
		}
	}
}

func TestRunStopsWithContext(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newTestSessions(t, SessionLimits{IdleTTL: time.Minute, Max: 10})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

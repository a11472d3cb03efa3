package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/capgate/capgate"
)

func TestSweepReclaimsExpiredPending(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	id, key, err := s.Create("123456", "default", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(capgate.DefaultUnsolvedTTL + time.Second)

	stats := s.Sweep()
	if stats.Reclaimed != 1 {
		t.Errorf("wanted 1 reclaimed, got %+v", stats)
	}

	if _, err := s.Image(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired challenge still serves its image: %v", err)
	}

	if outcome, _ := s.Verify(key, "123456"); outcome != OutcomeNotFound {
		t.Errorf("expired challenge still verifies: %s", outcome)
	}
}

func TestSweepKeepsLiveChallenges(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	id, _, err := s.Create("123456", "default", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(capgate.DefaultUnsolvedTTL / 2)

	stats := s.Sweep()
	if stats.Reclaimed != 0 || stats.Scanned != 1 {
		t.Errorf("sweep touched a challenge inside its TTL: %+v", stats)
	}

	if _, err := s.Image(id); err != nil {
		t.Errorf("live challenge lost its image: %v", err)
	}
}

func TestSweepHonorsSettleWindow(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	id, key, err := s.Create("123456", "default", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}

	if outcome, _ := s.Verify(key, "123456"); outcome != OutcomeSuccess {
		t.Fatal("can't solve the challenge under test")
	}

	// First sweep inside the settle window: the eager queue holds the
	// id back instead of reclaiming it.
	stats := s.Sweep()
	if stats.Reclaimed != 0 || stats.Requeued != 1 {
		t.Errorf("sweep ignored the settle window: %+v", stats)
	}

	if _, err := s.Image(id); err != nil {
		t.Errorf("solved challenge lost its image inside the settle window: %v", err)
	}

	clock.Advance(capgate.DefaultSettleTTL + time.Second)

	stats = s.Sweep()
	if stats.Reclaimed != 1 {
		t.Errorf("wanted the settled challenge reclaimed, got %+v", stats)
	}

	if _, err := s.Image(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("settled challenge still serves its image: %v", err)
	}
}

func TestSweepToleratesAlreadyEvictedQueueEntries(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	id, key, err := s.Create("123456", "default", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}

	if outcome, _ := s.Verify(key, "123456"); outcome != OutcomeSuccess {
		t.Fatal("can't solve the challenge under test")
	}

	// Simulate the TTL path winning the race: the id is queued for
	// eager eviction but the challenge is already gone.
	s.Evict(id)

	expiredID, _, err := s.Create("654321", "default", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(capgate.DefaultUnsolvedTTL + time.Second)

	stats := s.Sweep()
	if stats.Errors != 0 {
		t.Errorf("an already-evicted queue entry was counted as an error: %+v", stats)
	}
	if stats.Reclaimed != 1 {
		t.Errorf("the stale queue entry blocked reclamation of other entries: %+v", stats)
	}

	if _, err := s.Image(expiredID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired challenge survived the sweep: %v", err)
	}
}

func TestSweepIsolatesCorruptEntries(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	if _, _, err := s.Create("123456", "default", []byte("img")); err != nil {
		t.Fatal(err)
	}

	// A nil entry can only come from an invariant violation elsewhere;
	// the sweep has to survive it and keep reclaiming.
	s.mu.Lock()
	s.byID["corrupt"] = nil
	s.mu.Unlock()

	clock.Advance(capgate.DefaultUnsolvedTTL + time.Second)

	stats := s.Sweep()
	if stats.Errors != 1 {
		t.Errorf("wanted 1 isolated error, got %+v", stats)
	}
	if stats.Reclaimed != 1 {
		t.Errorf("the corrupt entry blocked reclamation: %+v", stats)
	}

	if _, err := s.Image("corrupt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("corrupt entry survived the sweep: %v", err)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	s := New()
	sw := &Sweeper{Store: s, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/capgate/capgate"
)

// SweepStats summarizes one reclamation pass.
type SweepStats struct {
	Scanned   int // live challenges examined
	Reclaimed int // challenges evicted this pass
	Requeued  int // solved challenges still inside their settle window
	Errors    int // malformed entries isolated and removed
}

// Sweep runs one reclamation pass: it drains the eager-eviction queue,
// then walks every live challenge and evicts the ones past their TTL.
// A malformed entry is counted and removed without aborting the pass.
func (s *Store) Sweep() SweepStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats SweepStats
	now := s.now()

	// Queue entries for challenges already evicted by the TTL path are
	// expected, they drop out silently. Solved challenges whose settle
	// window is still open go back on the queue so clients can re-fetch
	// the image they just solved.
	var requeue []string
	for _, id := range s.evictNext {
		ch, ok := s.byID[id]
		if !ok {
			continue
		}

		if ch != nil && ch.State == StateSolved && now.Sub(ch.SolvedAt) <= s.settleTTL {
			requeue = append(requeue, id)
			continue
		}

		if s.evictLocked(id) {
			stats.Reclaimed++
		}
	}
	s.evictNext = requeue
	stats.Requeued = len(requeue)

	for id, ch := range s.byID {
		stats.Scanned++

		if ch == nil {
			// Can only happen if an invariant was violated elsewhere.
			// Remove it so one bad entry doesn't wedge reclamation
			// forever, and count it so the bug is visible.
			delete(s.byID, id)
			stats.Errors++
			continue
		}

		switch ch.State {
		case StatePending:
			if now.Sub(ch.CreatedAt) > s.unsolvedTTL {
				s.evictLocked(id)
				stats.Reclaimed++
			}
		case StateSolved:
			if now.Sub(ch.SolvedAt) > s.settleTTL {
				s.evictLocked(id)
				stats.Reclaimed++
			}
		}
	}

	sweepsTotal.Inc()
	entriesReclaimed.Add(float64(stats.Reclaimed))
	sweepErrors.Add(float64(stats.Errors))

	return stats
}

// Sweeper periodically reclaims expired and settled challenges from a
// Store. It shares the store with the request handlers but touches it
// only through Sweep, so it needs no synchronization of its own.
type Sweeper struct {
	Store    *Store
	Interval time.Duration
}

// Run sweeps on a fixed interval until ctx is cancelled. An unexpected
// failure inside a pass is logged and the loop retries at the next
// tick; the sweeper itself never terminates early.
func (sw *Sweeper) Run(ctx context.Context) {
	interval := sw.Interval
	if interval <= 0 {
		interval = capgate.DefaultSweepInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sw.sweepOnce()
		}
	}
}

func (sw *Sweeper) sweepOnce() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep failed, retrying at next tick", "err", r)
		}
	}()

	stats := sw.Store.Sweep()
	slog.Info("sweep complete",
		"scanned", stats.Scanned,
		"reclaimed", stats.Reclaimed,
		"requeued", stats.Requeued,
		"errors", stats.Errors,
	)
}

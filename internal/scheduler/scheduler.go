// Package scheduler arranges deferred, at-most-once settlement of
// listings. Each scheduled listing gets an in-memory timer; a periodic
// sweep additionally settles any overdue listing whose timer was lost
// (for example after a restart with a durable store behind the
// repositories). Double fires are harmless because the settlement
// routine is idempotent.
package scheduler

import (
	"context"
	"sync"
	"time"

	"auction-house/utils"
)

// Settler resolves a single listing. It must be safe to invoke more
// than once for the same listing.
type Settler func(listingID string) error

const (
	maxSettleAttempts = 3
	retryBackoff      = 250 * time.Millisecond
)

// Scheduler fires settlement callbacks at listing end times
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer // key: listingID
	settle Settler
}

// New creates a Scheduler with no settlement callback bound yet; call
// OnFire before scheduling anything.
func New() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
	}
}

// OnFire binds the settlement callback invoked when a job fires
func (s *Scheduler) OnFire(settle Settler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle = settle
}

// Schedule registers a deferred settlement for a listing at the given
// instant. Scheduling an already-scheduled listing replaces its timer.
func (s *Scheduler) Schedule(listingID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[listingID]; ok {
		old.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[listingID] = time.AfterFunc(delay, func() {
		s.fire(listingID)
	})

	utils.Info("settlement scheduled", map[string]any{
		"listing_id": listingID,
		"ends_at":    at.UTC().Format(time.RFC3339),
	})
}

// Cancel removes a pending job for a listing. It is a no-op if the job
// already fired or was never scheduled, and is safe to call
// concurrently with the timer firing: whichever wins, the loser
// observes a no-op.
func (s *Scheduler) Cancel(listingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[listingID]; ok {
		timer.Stop()
		delete(s.timers, listingID)
		utils.Info("settlement cancelled", map[string]any{"listing_id": listingID})
	}
}

// fire claims the timer entry for a listing and runs settlement. If
// Cancel won the race the entry is gone and fire does nothing.
func (s *Scheduler) fire(listingID string) {
	s.mu.Lock()
	_, ok := s.timers[listingID]
	if ok {
		delete(s.timers, listingID)
	}
	settle := s.settle
	s.mu.Unlock()

	if !ok || settle == nil {
		return
	}
	s.runSettle(listingID, settle)
}

// runSettle invokes the settlement callback with bounded retries.
// A pending settlement is never silently dropped: exhausted retries are
// logged for manual reconciliation.
func (s *Scheduler) runSettle(listingID string, settle Settler) {
	var err error
	for attempt := 1; attempt <= maxSettleAttempts; attempt++ {
		if err = settle(listingID); err == nil {
			return
		}
		utils.Warn("settlement attempt failed", map[string]any{
			"listing_id": listingID,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		if attempt < maxSettleAttempts {
			time.Sleep(retryBackoff * time.Duration(attempt))
		}
	}

	utils.Error("settlement retries exhausted, manual reconciliation required", map[string]any{
		"listing_id": listingID,
		"attempts":   maxSettleAttempts,
		"error":      err.Error(),
	})
}

// RunSweeper periodically settles overdue listings reported by the
// overdue func, until ctx is done. It backstops the in-memory timers.
func (s *Scheduler) RunSweeper(ctx context.Context, interval time.Duration, overdue func() []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			settle := s.settle
			s.mu.Unlock()
			if settle == nil {
				continue
			}
			for _, listingID := range overdue() {
				s.Cancel(listingID) // drop any stale timer for this listing
				s.runSettle(listingID, settle)
			}
		}
	}
}

// Stop cancels all pending timers. Intended for shutdown and tests.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for listingID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, listingID)
	}
}

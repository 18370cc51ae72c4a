/*
scheduler.go - Automated cycle advancement

PURPOSE:
  Periodically sweeps active branches and advances any whose open cycle is
  past its due date plus the branch's grace period. This keeps rotations
  moving when an organizer forgets to close a cycle by hand.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Advances on behalf of the branch organizer, so the audit trail shows
    a real actor
  - A lost race with a manual advance surfaces as ErrStateConflict and is
    logged at debug, not treated as a failure

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewAdvanceScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AdvanceGroup endpoint (manual advancement)
  - paluwagan/lifecycle.go: AdvanceCycle semantics
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hiraya/paluwagan-engine/paluwagan"
)

// AdvanceScheduler auto-advances overdue cycles.
type AdvanceScheduler struct {
	Store         paluwagan.TxStore
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAdvanceScheduler creates a new scheduler.
func NewAdvanceScheduler(store paluwagan.TxStore, handler *Handler) *AdvanceScheduler {
	return &AdvanceScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

func (as *AdvanceScheduler) now() time.Time {
	if as.Now != nil {
		return as.Now()
	}
	return time.Now()
}

// Start begins the scheduler.
func (as *AdvanceScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		slog.Info("scheduler disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	slog.Info("scheduler started", "interval", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AdvanceScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		slog.Info("scheduler stopped")
	}
}

func (as *AdvanceScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.Sweep()

	for {
		select {
		case <-as.ticker.C:
			as.Sweep()
		case <-as.stop:
			return
		}
	}
}

// Sweep checks every active branch once and advances the overdue ones.
// Exported for tests and admin triggers.
func (as *AdvanceScheduler) Sweep() {
	ctx := context.Background()
	today := paluwagan.DateOf(as.now())

	groups, err := as.Store.ListGroupsByStatus(ctx, paluwagan.GroupActive)
	if err != nil {
		slog.Error("scheduler failed to list active groups", "error", err)
		return
	}

	advanced := 0
	for i := range groups {
		group := &groups[i]
		if as.advanceIfOverdue(ctx, group, today) {
			advanced++
		}
	}

	schedulerRuns.Inc()
	if advanced > 0 {
		slog.Info("scheduler sweep complete", "advanced", advanced, "active_groups", len(groups))
	}
}

// advanceIfOverdue advances one branch when its open cycle is past due
// plus grace. Returns true when an advancement happened.
func (as *AdvanceScheduler) advanceIfOverdue(ctx context.Context, group *paluwagan.Group, today paluwagan.Date) bool {
	open, err := as.Store.OpenCycle(ctx, group.ID)
	if err != nil {
		slog.Error("scheduler failed to load open cycle", "group_id", group.ID, "error", err)
		return false
	}
	if open == nil {
		return false
	}

	deadline := open.Due.AddDays(group.Rules.GracePeriodDays)
	if !today.After(deadline) {
		return false
	}

	// Advance as the organizer so the audit trail names a real actor.
	result, err := as.Handler.Lifecycle.AdvanceCycle(ctx, group.ID, group.OrganizerID)
	if err != nil {
		if errors.Is(err, paluwagan.ErrStateConflict) {
			// Lost a race with a manual advance; next sweep re-checks.
			slog.Debug("scheduler lost advance race", "group_id", group.ID)
			return false
		}
		slog.Error("scheduler failed to advance cycle",
			"group_id", group.ID, "cycle", open.Number, "error", err)
		return false
	}

	cyclesAdvanced.Inc()
	slog.Info("scheduler advanced overdue cycle",
		"group_id", group.ID,
		"closed_cycle", result.ClosedCycle.Number,
		"completed", result.Completed)
	return true
}

/*
lifecycle.go - Group lifecycle orchestration

PURPOSE:
  Owns the two transitions that shape a group's financial life:

  Start:
    forming -> active. Assigns payout positions, generates the group's
    entire cycle set in one batch (one cycle per member slot), opens cycle
    1 with its contributions and payout, and activates the group. All
    writes happen inside a single transaction: a partial failure must not
    leave a forming group with cycles already generated.

  AdvanceCycle:
    Closes the open cycle and opens the next, creating contributions for
    every currently active member and the payout for the next recipient.
    When no next cycle exists the group completes. Manually triggered by
    the organizer; there is no timer in the core (see api/scheduler.go for
    the optional time-driven wrapper calling this same contract).

CONCURRENCY:
  Both operations finish with a conditional status update (WHERE status =
  expected). A concurrent caller that already advanced the group causes
  ErrStateConflict, which is surfaced as a precondition failure, never
  silently swallowed and never retried: re-running a multi-row insert
  would duplicate cycles and contributions.

OWNERSHIP:
  This file is the exclusive creator of Cycle and Payout rows and of each
  cycle's Contribution batch. statemachine.go mutates their statuses
  afterwards; nothing else writes them.

SEE ALSO:
  - order.go: Position assignment invoked by Start
  - schedule.go: Cycle window arithmetic
  - statemachine.go: Post-start status transitions
*/
package paluwagan

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

type LifecycleService struct {
	Store TxStore

	// Rand feeds lottery ordering; nil means a time-seeded source.
	Rand rand.Source

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

func NewLifecycleService(store TxStore) *LifecycleService {
	return &LifecycleService{Store: store}
}

func (s *LifecycleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// StartResult reports what Start created.
type StartResult struct {
	Group       *Group
	Assignments []PositionAssignment
	FirstCycle  *Cycle
}

// AdvanceResult reports the outcome of one cycle advancement.
type AdvanceResult struct {
	ClosedCycle *Cycle
	OpenedCycle *Cycle // nil when the group completed
	Completed   bool
}

// =============================================================================
// START - forming -> active
// =============================================================================

// Start activates a forming group. The actor must hold the organizer role
// and at least two members must be active.
func (s *LifecycleService) Start(ctx context.Context, groupID GroupID, actorID UserID) (*StartResult, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}

	var result *StartResult
	err := s.Store.WithTx(ctx, func(st Store) error {
		group, err := st.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := requireOrganizer(ctx, st, groupID, actorID, "start group"); err != nil {
			return err
		}
		if group.Status != GroupForming {
			return &StateError{Entity: "group", Current: string(group.Status), Wanted: string(GroupForming), Action: "start group"}
		}

		members, err := st.ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		active := ActiveMembers(members)
		if len(active) < 2 {
			return &ValidationError{Field: "members", Message: fmt.Sprintf("need at least 2 active members to start, have %d", len(active))}
		}

		// 1. Assign payout positions.
		candidates := make([]OrderCandidate, len(active))
		byUser := make(map[UserID]*Member, len(active))
		for i := range active {
			m := &active[i]
			candidates[i] = OrderCandidate{UserID: m.UserID, Position: m.PayoutPosition}
			byUser[m.UserID] = m
		}
		assignments, err := AssignPayoutOrder(candidates, group.OrderMethod, s.Rand)
		if err != nil {
			return err
		}
		recipients := make(map[int]UserID, len(assignments))
		for _, a := range assignments {
			if err := st.SetPayoutPosition(ctx, byUser[a.UserID].ID, a.Position); err != nil {
				return err
			}
			recipients[a.Position] = a.UserID
		}

		// 2. Generate the full cycle set: one per member slot, cycle 1 open.
		cycles := make([]Cycle, group.Capacity)
		for n := 1; n <= group.Capacity; n++ {
			w := CycleDates(group.StartDate, n, group.Frequency)
			c := Cycle{
				ID:      CycleID(uuid.New().String()),
				GroupID: groupID,
				Number:  n,
				Start:   w.Start,
				Due:     w.Due,
				Status:  CycleUpcoming,
			}
			if n == 1 {
				c.Status = CycleOpen
			}
			if user, ok := recipients[n]; ok {
				u := user
				c.RecipientID = &u
			}
			cycles[n-1] = c
		}
		if err := st.CreateCycles(ctx, cycles); err != nil {
			return err
		}
		first := &cycles[0]

		// 3. Cycle 1 contributions and payout.
		if err := s.openCycleRows(ctx, st, group, first, active); err != nil {
			return err
		}

		// 4. Activate. Zero rows matched means another caller got here first.
		if err := st.UpdateGroupStatus(ctx, groupID, GroupForming, GroupActive); err != nil {
			return err
		}
		group.Status = GroupActive

		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    groupID,
			ActorID:    actorID,
			EntityType: EntityGroup,
			EntityID:   string(groupID),
			Action:     "start",
			Metadata:   map[string]any{"cycles": group.Capacity, "members": len(active)},
			CreatedAt:  s.now(),
		}); err != nil {
			return err
		}

		for _, a := range assignments {
			gid := groupID
			if err := st.AppendNotification(ctx, Notification{
				UserID:    a.UserID,
				GroupID:   &gid,
				Type:      "group_started",
				Title:     fmt.Sprintf("%s has started", group.Name),
				Message:   fmt.Sprintf("Your payout position is %d of %d.", a.Position, len(assignments)),
				Data:      map[string]any{"position": a.Position},
				CreatedAt: s.now(),
			}); err != nil {
				return err
			}
		}

		result = &StartResult{Group: group, Assignments: assignments, FirstCycle: first}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("group started",
		"group_id", groupID,
		"members", len(result.Assignments),
		"method", result.Group.OrderMethod,
	)
	return result, nil
}

// =============================================================================
// ADVANCE CYCLE - close current, open next (or complete)
// =============================================================================

// AdvanceCycle closes the group's open cycle and opens the next one. The
// next payout's gross is recomputed from the CURRENT active member count,
// not the count frozen at start, so removals between cycles shrink later
// pools. Product has flagged this recompute-vs-freeze question; the live
// recompute matches the original behavior and stays until resolved.
func (s *LifecycleService) AdvanceCycle(ctx context.Context, groupID GroupID, actorID UserID) (*AdvanceResult, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}

	var result *AdvanceResult
	err := s.Store.WithTx(ctx, func(st Store) error {
		group, err := st.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := requireOrganizer(ctx, st, groupID, actorID, "advance cycle"); err != nil {
			return err
		}

		open, err := st.OpenCycle(ctx, groupID)
		if err != nil {
			return err
		}
		if open == nil {
			return &StateError{Entity: "cycle", Current: "none open", Wanted: string(CycleOpen), Action: "advance cycle"}
		}

		if err := st.UpdateCycleStatus(ctx, open.ID, CycleOpen, CycleClosed); err != nil {
			return err
		}
		open.Status = CycleClosed

		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    groupID,
			ActorID:    actorID,
			EntityType: EntityCycle,
			EntityID:   string(open.ID),
			Action:     "close",
			Metadata:   map[string]any{"cycle_number": open.Number},
			CreatedAt:  s.now(),
		}); err != nil {
			return err
		}

		next, err := cycleByNumber(ctx, st, groupID, open.Number+1)
		if err != nil {
			return err
		}
		if next == nil {
			// Final cycle closed: the rotation is complete.
			if err := st.UpdateGroupStatus(ctx, groupID, GroupActive, GroupCompleted); err != nil {
				return err
			}
			result = &AdvanceResult{ClosedCycle: open, Completed: true}
			return nil
		}

		if err := st.UpdateCycleStatus(ctx, next.ID, CycleUpcoming, CycleOpen); err != nil {
			return err
		}
		next.Status = CycleOpen

		members, err := st.ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		if err := s.openCycleRows(ctx, st, group, next, ActiveMembers(members)); err != nil {
			return err
		}

		result = &AdvanceResult{ClosedCycle: open, OpenedCycle: next}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("cycle advanced",
		"group_id", groupID,
		"closed", result.ClosedCycle.Number,
		"completed", result.Completed,
	)
	return result, nil
}

// openCycleRows creates the contribution batch and payout for a cycle that
// just opened. Gross pool = contribution amount x active member count at
// open time. The payout is only created when the cycle has a recipient
// (capacity can exceed the member count).
func (s *LifecycleService) openCycleRows(ctx context.Context, st Store, group *Group, cycle *Cycle, active []Member) error {
	contributions := make([]Contribution, len(active))
	for i, m := range active {
		contributions[i] = Contribution{
			ID:       ContributionID(uuid.New().String()),
			CycleID:  cycle.ID,
			GroupID:  group.ID,
			MemberID: m.ID,
			UserID:   m.UserID,
			Amount:   group.Amount,
			Status:   ContribUnpaid,
		}
	}
	if err := st.CreateContributions(ctx, contributions); err != nil {
		return err
	}

	if cycle.RecipientID == nil {
		return nil
	}

	gross := group.Amount.Mul(decimalFromInt(len(active)))
	fee := group.Fee.FeeOn(gross)
	payout := &Payout{
		ID:          PayoutID(uuid.New().String()),
		CycleID:     cycle.ID,
		GroupID:     group.ID,
		RecipientID: *cycle.RecipientID,
		Gross:       gross,
		Fee:         fee,
		Net:         gross.Sub(fee),
		Status:      PayoutScheduled,
	}
	return st.CreatePayout(ctx, payout)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// requireOrganizer loads the actor's live membership row and checks the
// organizer role. Roles are never trusted from a cache or token.
func requireOrganizer(ctx context.Context, st Store, groupID GroupID, actorID UserID, action string) (*Member, error) {
	m, err := st.GetMemberByUser(ctx, groupID, actorID)
	if err != nil {
		return nil, &AuthorizationError{ActorID: actorID, Action: action, Needs: "organizer role"}
	}
	if m.Role != RoleOrganizer || m.Status != MemberActive {
		return nil, &AuthorizationError{ActorID: actorID, Action: action, Needs: "organizer role"}
	}
	return m, nil
}

func cycleByNumber(ctx context.Context, st Store, groupID GroupID, number int) (*Cycle, error) {
	cycles, err := st.ListCycles(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for i := range cycles {
		if cycles[i].Number == number {
			return &cycles[i], nil
		}
	}
	return nil, nil
}

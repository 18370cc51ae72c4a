/*
statemachine.go - Contribution and payout status transitions

PURPOSE:
  After lifecycle.go has created the rows, this file owns every status
  change on them:

  Contribution: unpaid -> pending_proof -> paid_confirmed
                disputed reachable from unpaid or pending_proof

  Payout:       scheduled -> sent_by_organizer -> confirmed_by_recipient
                disputed reachable from either of the first two

GUARDS:
  Every transition re-reads the actor's membership row; roles are never
  cached. A failed guard changes nothing (fails closed). Disputing an
  already-disputed row is rejected with a state error rather than treated
  as a silent no-op, so callers can tell the difference.

IS_LATE:
  Computed exactly once at submission by comparing the submission day to
  the cycle due date; a contribution submitted any day after the due date
  is late, and the flag is never recomputed afterwards.

AUDIT:
  Every mutation appends one audit entry carrying actor, entity, action,
  and a metadata payload ({reason}, {is_late}).

SEE ALSO:
  - lifecycle.go: Creates the rows these transitions mutate
*/
package paluwagan

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// CONTRIBUTION SERVICE
// =============================================================================

type ContributionService struct {
	Store TxStore
	Now   func() time.Time
}

func NewContributionService(store TxStore) *ContributionService {
	return &ContributionService{Store: store}
}

func (s *ContributionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Submit records a member's payment proof: unpaid -> pending_proof. Only
// the contribution's owner may submit.
func (s *ContributionService) Submit(ctx context.Context, id ContributionID, actorID UserID, proofRef, note string) (*Contribution, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	var contribution *Contribution
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContribution(ctx, id)
		if err != nil {
			return err
		}
		if c.UserID != actorID {
			return &AuthorizationError{ActorID: actorID, Action: "submit contribution", Needs: "contribution owner"}
		}
		if c.Status != ContribUnpaid {
			return &StateError{Entity: "contribution", Current: string(c.Status), Wanted: string(ContribUnpaid), Action: "submit contribution"}
		}

		cycle, err := st.GetCycle(ctx, c.CycleID)
		if err != nil {
			return err
		}

		now := s.now()
		c.Status = ContribPendingProof
		c.ProofRef = proofRef
		c.Note = note
		c.IsLate = DateOf(now).After(cycle.Due) // frozen from here on
		c.SubmittedAt = &now
		if err := st.UpdateContribution(ctx, c); err != nil {
			return err
		}
		contribution = c

		group, err := st.GetGroup(ctx, c.GroupID)
		if err != nil {
			return err
		}
		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    c.GroupID,
			ActorID:    actorID,
			EntityType: EntityContribution,
			EntityID:   string(id),
			Action:     "submit",
			Metadata:   map[string]any{"is_late": c.IsLate, "cycle_number": cycle.Number},
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := c.GroupID
		return st.AppendNotification(ctx, Notification{
			UserID:    group.OrganizerID,
			GroupID:   &gid,
			Type:      "contribution_submitted",
			Title:     "Contribution submitted",
			Message:   fmt.Sprintf("A member submitted payment for cycle %d.", cycle.Number),
			Data:      map[string]any{"contribution_id": string(id), "is_late": c.IsLate},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	slog.Info("contribution submitted", "contribution_id", id, "late", contribution.IsLate)
	return contribution, nil
}

// Confirm marks a submitted contribution as paid: pending_proof ->
// paid_confirmed. Organizer-only; the confirming actor is recorded.
func (s *ContributionService) Confirm(ctx context.Context, id ContributionID, actorID UserID) (*Contribution, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	var contribution *Contribution
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContribution(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOrganizer(ctx, st, c.GroupID, actorID, "confirm contribution"); err != nil {
			return err
		}
		if c.Status != ContribPendingProof {
			return &StateError{Entity: "contribution", Current: string(c.Status), Wanted: string(ContribPendingProof), Action: "confirm contribution"}
		}

		now := s.now()
		c.Status = ContribConfirmed
		actor := actorID
		c.ConfirmedBy = &actor
		if err := st.UpdateContribution(ctx, c); err != nil {
			return err
		}
		contribution = c

		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    c.GroupID,
			ActorID:    actorID,
			EntityType: EntityContribution,
			EntityID:   string(id),
			Action:     "confirm",
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := c.GroupID
		return st.AppendNotification(ctx, Notification{
			UserID:    c.UserID,
			GroupID:   &gid,
			Type:      "contribution_confirmed",
			Title:     "Payment confirmed",
			Message:   "The organizer confirmed your contribution.",
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return contribution, nil
}

// Dispute flags a contribution: reachable from unpaid or pending_proof,
// by the organizer or the owner, with a mandatory reason.
func (s *ContributionService) Dispute(ctx context.Context, id ContributionID, actorID UserID, reason string) (*Contribution, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "dispute reason is required"}
	}
	var contribution *Contribution
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContribution(ctx, id)
		if err != nil {
			return err
		}
		if c.UserID != actorID {
			if _, err := requireOrganizer(ctx, st, c.GroupID, actorID, "dispute contribution"); err != nil {
				return err
			}
		}
		if c.Status != ContribUnpaid && c.Status != ContribPendingProof {
			return &StateError{Entity: "contribution", Current: string(c.Status), Wanted: "unpaid or pending_proof", Action: "dispute contribution"}
		}

		now := s.now()
		c.Status = ContribDisputed
		c.DisputeReason = reason
		if err := st.UpdateContribution(ctx, c); err != nil {
			return err
		}
		contribution = c

		return st.AppendAudit(ctx, AuditEntry{
			GroupID:    c.GroupID,
			ActorID:    actorID,
			EntityType: EntityContribution,
			EntityID:   string(id),
			Action:     "dispute",
			Metadata:   map[string]any{"reason": reason},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return contribution, nil
}

// =============================================================================
// PAYOUT SERVICE
// =============================================================================

type PayoutService struct {
	Store TxStore
	Now   func() time.Time
}

func NewPayoutService(store TxStore) *PayoutService {
	return &PayoutService{Store: store}
}

func (s *PayoutService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// MarkSent records that the organizer disbursed the pool: scheduled ->
// sent_by_organizer.
func (s *PayoutService) MarkSent(ctx context.Context, id PayoutID, actorID UserID, note string) (*Payout, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	var payout *Payout
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOrganizer(ctx, st, p.GroupID, actorID, "mark payout sent"); err != nil {
			return err
		}
		if p.Status != PayoutScheduled {
			return &StateError{Entity: "payout", Current: string(p.Status), Wanted: string(PayoutScheduled), Action: "mark payout sent"}
		}

		now := s.now()
		p.Status = PayoutSent
		p.SentAt = &now
		if note != "" {
			p.Note = note
		}
		if err := st.UpdatePayout(ctx, p); err != nil {
			return err
		}
		payout = p

		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    p.GroupID,
			ActorID:    actorID,
			EntityType: EntityPayout,
			EntityID:   string(id),
			Action:     "mark_sent",
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := p.GroupID
		return st.AppendNotification(ctx, Notification{
			UserID:    p.RecipientID,
			GroupID:   &gid,
			Type:      "payout_sent",
			Title:     "Payout on the way",
			Message:   fmt.Sprintf("The organizer sent your payout of %s.", p.Net.StringFixed(2)),
			Data:      map[string]any{"payout_id": string(id)},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	slog.Info("payout sent", "payout_id", id)
	return payout, nil
}

// ConfirmReceived is the recipient's acknowledgement: sent_by_organizer ->
// confirmed_by_recipient.
func (s *PayoutService) ConfirmReceived(ctx context.Context, id PayoutID, actorID UserID, note string) (*Payout, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	var payout *Payout
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		if p.RecipientID != actorID {
			return &AuthorizationError{ActorID: actorID, Action: "confirm payout", Needs: "payout recipient"}
		}
		if p.Status != PayoutSent {
			return &StateError{Entity: "payout", Current: string(p.Status), Wanted: string(PayoutSent), Action: "confirm payout"}
		}

		now := s.now()
		p.Status = PayoutConfirmed
		p.ConfirmedAt = &now
		if note != "" {
			p.Note = note
		}
		if err := st.UpdatePayout(ctx, p); err != nil {
			return err
		}
		payout = p

		group, err := st.GetGroup(ctx, p.GroupID)
		if err != nil {
			return err
		}
		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    p.GroupID,
			ActorID:    actorID,
			EntityType: EntityPayout,
			EntityID:   string(id),
			Action:     "confirm_received",
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := p.GroupID
		return st.AppendNotification(ctx, Notification{
			UserID:    group.OrganizerID,
			GroupID:   &gid,
			Type:      "payout_confirmed",
			Title:     "Payout confirmed",
			Message:   "The recipient confirmed the payout.",
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// Dispute flags a payout, by the organizer or the recipient, from
// scheduled or sent_by_organizer.
func (s *PayoutService) Dispute(ctx context.Context, id PayoutID, actorID UserID, reason string) (*Payout, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "dispute reason is required"}
	}
	var payout *Payout
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayout(ctx, id)
		if err != nil {
			return err
		}
		if p.RecipientID != actorID {
			if _, err := requireOrganizer(ctx, st, p.GroupID, actorID, "dispute payout"); err != nil {
				return err
			}
		}
		if p.Status != PayoutScheduled && p.Status != PayoutSent {
			return &StateError{Entity: "payout", Current: string(p.Status), Wanted: "scheduled or sent_by_organizer", Action: "dispute payout"}
		}

		now := s.now()
		p.Status = PayoutDisputed
		p.DisputeReason = reason
		if err := st.UpdatePayout(ctx, p); err != nil {
			return err
		}
		payout = p

		return st.AppendAudit(ctx, AuditEntry{
			GroupID:    p.GroupID,
			ActorID:    actorID,
			EntityType: EntityPayout,
			EntityID:   string(id),
			Action:     "dispute",
			Metadata:   map[string]any{"reason": reason},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

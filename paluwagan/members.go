/*
members.go - Group creation and membership management

PURPOSE:
  Everything that happens to a group before and around its rotation:
  creating the group (with the organizer's own membership row), join
  requests gated by the cross-group limit validator, organizer approval,
  freeze/unfreeze, and removal.

JOIN FLOW:
  RequestJoin runs the limit validator INSIDE the same transaction that
  inserts the membership row. Both store implementations serialize
  writers, so two simultaneous joins cannot both pass a ceiling they would
  jointly exceed. The returned LimitDecision is also handed back on
  success so the UI can show remaining headroom.

INVARIANTS:
  - A user has at most one non-removed membership row per group
  - Slots are fixed at creation: joins beyond capacity are rejected
  - Membership changes only happen while the group is forming, except
    freeze/unfreeze/remove which the organizer may apply mid-rotation
  - Removed members keep their payout position; positions are never
    reassigned

SEE ALSO:
  - limits.go: The validator consulted here
  - lifecycle.go: Consumes the member set at start and cycle-advance
*/
package paluwagan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMBERSHIP SERVICE
// =============================================================================

type MembershipService struct {
	Store  TxStore
	Limits LimitPolicy

	Now func() time.Time
}

func NewMembershipService(store TxStore) *MembershipService {
	return &MembershipService{Store: store, Limits: DefaultLimitPolicy()}
}

func (s *MembershipService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NewGroupParams carries everything needed to create a branch.
type NewGroupParams struct {
	OrganizerID UserID
	Name        string
	Amount      decimal.Decimal
	Frequency   Frequency
	StartDate   Date
	Capacity    int
	OrderMethod OrderMethod
	Fee         OrganizerFee
	Rules       GroupRules
}

// =============================================================================
// GROUP CREATION
// =============================================================================

// CreateGroup validates the branch terms and creates the group in forming
// status together with the organizer's active membership row.
func (s *MembershipService) CreateGroup(ctx context.Context, p NewGroupParams) (*Group, error) {
	if p.OrganizerID == "" {
		return nil, ErrNotAuthenticated
	}
	if p.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "group name is required"}
	}
	if !p.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "contribution amount must be positive"}
	}
	if !p.Frequency.Valid() {
		return nil, &ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", p.Frequency)}
	}
	if p.Capacity < 2 {
		return nil, &ValidationError{Field: "capacity", Message: "a branch needs at least 2 member slots"}
	}
	if !p.OrderMethod.Valid() {
		return nil, &ValidationError{Field: "order_method", Message: fmt.Sprintf("unknown order method %q", p.OrderMethod)}
	}
	if p.Fee.Mode == "" {
		p.Fee = DefaultOrganizerFee()
	}
	if err := p.Fee.Validate(); err != nil {
		return nil, err
	}
	if p.StartDate.IsZero() {
		return nil, &ValidationError{Field: "start_date", Message: "start date is required"}
	}

	now := s.now()
	group := &Group{
		ID:          GroupID(uuid.New().String()),
		OrganizerID: p.OrganizerID,
		Name:        p.Name,
		Amount:      p.Amount,
		Frequency:   p.Frequency,
		StartDate:   p.StartDate,
		Capacity:    p.Capacity,
		OrderMethod: p.OrderMethod,
		Status:      GroupForming,
		Fee:         p.Fee,
		Rules:       p.Rules,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.Store.WithTx(ctx, func(st Store) error {
		if err := st.CreateGroup(ctx, group); err != nil {
			return err
		}
		organizer := &Member{
			ID:       MemberID(uuid.New().String()),
			GroupID:  group.ID,
			UserID:   p.OrganizerID,
			Role:     RoleOrganizer,
			Status:   MemberActive,
			JoinedAt: now,
		}
		if err := st.CreateMember(ctx, organizer); err != nil {
			return err
		}
		return st.AppendAudit(ctx, AuditEntry{
			GroupID:    group.ID,
			ActorID:    p.OrganizerID,
			EntityType: EntityGroup,
			EntityID:   string(group.ID),
			Action:     "create",
			Metadata:   map[string]any{"capacity": p.Capacity, "frequency": string(p.Frequency)},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("group created", "group_id", group.ID, "organizer", p.OrganizerID, "capacity", p.Capacity)
	return group, nil
}

// CancelGroup is the terminal side-exit: forming -> cancelled. Active
// rotations cannot be cancelled.
func (s *MembershipService) CancelGroup(ctx context.Context, groupID GroupID, actorID UserID) error {
	if actorID == "" {
		return ErrNotAuthenticated
	}
	return s.Store.WithTx(ctx, func(st Store) error {
		if _, err := requireOrganizer(ctx, st, groupID, actorID, "cancel group"); err != nil {
			return err
		}
		if err := st.UpdateGroupStatus(ctx, groupID, GroupForming, GroupCancelled); err != nil {
			return err
		}
		return st.AppendAudit(ctx, AuditEntry{
			GroupID:    groupID,
			ActorID:    actorID,
			EntityType: EntityGroup,
			EntityID:   string(groupID),
			Action:     "cancel",
			CreatedAt:  s.now(),
		})
	})
}

// =============================================================================
// JOIN
// =============================================================================

// RequestJoin asks to join a forming group. Limit validation runs inside
// the insert transaction; a rejection comes back as *LimitError with the
// full decision attached. When the group's rules auto-approve members the
// new row is active immediately, otherwise it is pending.
func (s *MembershipService) RequestJoin(ctx context.Context, groupID GroupID, userID UserID) (*Member, *LimitDecision, error) {
	if userID == "" {
		return nil, nil, ErrNotAuthenticated
	}

	var (
		member   *Member
		decision *LimitDecision
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		group, err := st.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if group.Status != GroupForming {
			return &StateError{Entity: "group", Current: string(group.Status), Wanted: string(GroupForming), Action: "join group"}
		}

		if existing, err := st.GetMemberByUser(ctx, groupID, userID); err == nil && existing != nil {
			return &ValidationError{Field: "user_id", Message: "already a member of this group"}
		}

		members, err := st.ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		taken := 0
		for _, m := range members {
			if m.Status != MemberRemoved {
				taken++
			}
		}
		if taken >= group.Capacity {
			return &ValidationError{Field: "capacity", Message: fmt.Sprintf("all %d slots are taken", group.Capacity)}
		}

		validator := &LimitValidator{Memberships: st, Policy: s.Limits}
		decision, err = validator.Validate(ctx, userID, group.Amount, group.Frequency)
		if err != nil {
			return err
		}
		if !decision.CanJoin {
			return &LimitError{Decision: *decision}
		}

		status := MemberPending
		if group.Rules.AutoApproveMembers {
			status = MemberActive
		}
		now := s.now()
		member = &Member{
			ID:       MemberID(uuid.New().String()),
			GroupID:  groupID,
			UserID:   userID,
			Role:     RoleMember,
			Status:   status,
			JoinedAt: now,
		}
		if err := st.CreateMember(ctx, member); err != nil {
			return err
		}

		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    groupID,
			ActorID:    userID,
			EntityType: EntityMember,
			EntityID:   string(member.ID),
			Action:     "join_request",
			Metadata:   map[string]any{"auto_approved": status == MemberActive},
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := groupID
		return st.AppendNotification(ctx, Notification{
			UserID:    group.OrganizerID,
			GroupID:   &gid,
			Type:      "join_request",
			Title:     "New join request",
			Message:   fmt.Sprintf("A user asked to join %s.", group.Name),
			Data:      map[string]any{"member_id": string(member.ID)},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, decision, err
	}
	return member, decision, nil
}

// =============================================================================
// ORGANIZER ACTIONS ON MEMBERS
// =============================================================================

// Approve admits a pending member.
func (s *MembershipService) Approve(ctx context.Context, memberID MemberID, actorID UserID) (*Member, error) {
	return s.transition(ctx, memberID, actorID, "approve member", MemberPending, MemberActive, "member_approved", "Your join request was approved.")
}

// Freeze suspends an active member; frozen members receive no new
// contributions when a cycle opens.
func (s *MembershipService) Freeze(ctx context.Context, memberID MemberID, actorID UserID) (*Member, error) {
	return s.transition(ctx, memberID, actorID, "freeze member", MemberActive, MemberFrozen, "member_frozen", "Your membership was frozen by the organizer.")
}

// Unfreeze reactivates a frozen member.
func (s *MembershipService) Unfreeze(ctx context.Context, memberID MemberID, actorID UserID) (*Member, error) {
	return s.transition(ctx, memberID, actorID, "unfreeze member", MemberFrozen, MemberActive, "member_unfrozen", "Your membership was reactivated.")
}

// Remove soft-deletes a membership. The payout position, if assigned,
// stays on the row; positions are never reassigned. Removal mid-rotation
// shrinks subsequent payout pools (see AdvanceCycle).
func (s *MembershipService) Remove(ctx context.Context, memberID MemberID, actorID UserID) (*Member, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	var member *Member
	err := s.Store.WithTx(ctx, func(st Store) error {
		m, err := st.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if _, err := requireOrganizer(ctx, st, m.GroupID, actorID, "remove member"); err != nil {
			return err
		}
		if m.Status == MemberRemoved {
			return &StateError{Entity: "member", Current: string(m.Status), Wanted: "non-removed", Action: "remove member"}
		}
		if m.Role == RoleOrganizer {
			return &ValidationError{Field: "member_id", Message: "the organizer cannot be removed"}
		}
		if err := st.UpdateMemberStatus(ctx, memberID, MemberRemoved); err != nil {
			return err
		}
		m.Status = MemberRemoved
		member = m

		now := s.now()
		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    m.GroupID,
			ActorID:    actorID,
			EntityType: EntityMember,
			EntityID:   string(memberID),
			Action:     "remove",
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := m.GroupID
		return st.AppendNotification(ctx, Notification{
			UserID:    m.UserID,
			GroupID:   &gid,
			Type:      "member_removed",
			Title:     "Membership removed",
			Message:   "You were removed from the group by the organizer.",
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *MembershipService) transition(
	ctx context.Context,
	memberID MemberID,
	actorID UserID,
	action string,
	from, to MemberStatus,
	notifyType, notifyMessage string,
) (*Member, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	var member *Member
	err := s.Store.WithTx(ctx, func(st Store) error {
		m, err := st.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if _, err := requireOrganizer(ctx, st, m.GroupID, actorID, action); err != nil {
			return err
		}
		if m.Status != from {
			return &StateError{Entity: "member", Current: string(m.Status), Wanted: string(from), Action: action}
		}
		if err := st.UpdateMemberStatus(ctx, memberID, to); err != nil {
			return err
		}
		m.Status = to
		member = m

		now := s.now()
		if err := st.AppendAudit(ctx, AuditEntry{
			GroupID:    m.GroupID,
			ActorID:    actorID,
			EntityType: EntityMember,
			EntityID:   string(memberID),
			Action:     string(to),
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		gid := m.GroupID
		return st.AppendNotification(ctx, Notification{
			UserID:    m.UserID,
			GroupID:   &gid,
			Type:      notifyType,
			Title:     "Membership update",
			Message:   notifyMessage,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// CheckLimits is the read-only preview used by the join screen; it never
// writes and its approval is not a reservation.
func (s *MembershipService) CheckLimits(ctx context.Context, userID UserID, amount decimal.Decimal, freq Frequency) (*LimitDecision, error) {
	validator := &LimitValidator{Memberships: s.Store, Policy: s.Limits}
	return validator.Validate(ctx, userID, amount, freq)
}

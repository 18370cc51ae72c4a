/*
store.go - Persistence interfaces for the paluwagan engine

PURPOSE:
  Defines the seam between the domain services and the database. Every
  engine operation performs multiple dependent reads and writes (start()
  touches members, cycles, contributions, and payouts together), so the
  write side is wrapped in WithTx for all-or-nothing semantics.

KEY INTERFACES:
  Store:   Per-entity reads and writes plus the audit/notification appends
  TxStore: Store plus WithTx for atomic multi-table operations

CONDITIONAL UPDATES:
  UpdateGroupStatus and UpdateCycleStatus take the expected current status
  and must return ErrStateConflict when no row matches. This is the
  serialization guard for concurrent start()/advanceCycle() calls on the
  same group: the loser of the race sees a conflict instead of silently
  double-applying.

APPEND-ONLY STREAMS:
  AuditEntry and Notification rows are append-only and immutable (the only
  mutation on notifications is the read flag). They feed UI activity feeds
  and bells; the engine only ever appends.

IMPLEMENTATIONS:
  - paluwagan/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: Production SQLite

SEE ALSO:
  - lifecycle.go, members.go, statemachine.go: The only writers
*/
package paluwagan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Combined persistence interface
// =============================================================================

type Store interface {
	GroupStore
	MemberStore
	CycleStore
	ContributionStore
	PayoutStore
	AuditLog
	NotificationLog
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back; otherwise it is committed. The Store passed to
// fn is only valid for the duration of the call.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id GroupID) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListGroupsByStatus(ctx context.Context, status GroupStatus) ([]Group, error)

	// UpdateGroupStatus transitions from -> to, returning ErrStateConflict
	// if the group is no longer in the expected status.
	UpdateGroupStatus(ctx context.Context, id GroupID, from, to GroupStatus) error
}

type MemberStore interface {
	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)

	// GetMemberByUser returns the user's non-removed membership row in the
	// group, or a NotFoundError.
	GetMemberByUser(ctx context.Context, groupID GroupID, userID UserID) (*Member, error)

	ListMembers(ctx context.Context, groupID GroupID) ([]Member, error)
	UpdateMemberStatus(ctx context.Context, id MemberID, status MemberStatus) error

	// SetPayoutPosition records a member's assigned slot. Positions are
	// applied once at group start and never reassigned.
	SetPayoutPosition(ctx context.Context, id MemberID, position int) error

	MembershipReader
}

// MembershipReader is the read used by the limit validator: a user's
// active-or-pending memberships joined with their groups' terms.
type MembershipReader interface {
	ListUserMemberships(ctx context.Context, userID UserID) ([]MembershipDetail, error)
}

// MembershipDetail is one row of a user's cross-group exposure.
type MembershipDetail struct {
	GroupID     GroupID
	GroupName   string
	GroupStatus GroupStatus
	Status      MemberStatus
	Amount      decimal.Decimal
	Frequency   Frequency
}

type CycleStore interface {
	// CreateCycles inserts a group's full cycle set in one batch.
	CreateCycles(ctx context.Context, cycles []Cycle) error

	GetCycle(ctx context.Context, id CycleID) (*Cycle, error)
	ListCycles(ctx context.Context, groupID GroupID) ([]Cycle, error)

	// OpenCycle returns the group's single open cycle, or nil when none is.
	OpenCycle(ctx context.Context, groupID GroupID) (*Cycle, error)

	// UpdateCycleStatus transitions from -> to, returning ErrStateConflict
	// if the cycle is no longer in the expected status.
	UpdateCycleStatus(ctx context.Context, id CycleID, from, to CycleStatus) error
}

type ContributionStore interface {
	CreateContributions(ctx context.Context, contributions []Contribution) error
	GetContribution(ctx context.Context, id ContributionID) (*Contribution, error)
	ListContributionsByCycle(ctx context.Context, cycleID CycleID) ([]Contribution, error)
	ListContributionsByGroup(ctx context.Context, groupID GroupID) ([]Contribution, error)
	UpdateContribution(ctx context.Context, c *Contribution) error
}

type PayoutStore interface {
	CreatePayout(ctx context.Context, p *Payout) error
	GetPayout(ctx context.Context, id PayoutID) (*Payout, error)
	GetPayoutByCycle(ctx context.Context, cycleID CycleID) (*Payout, error)
	ListPayoutsByGroup(ctx context.Context, groupID GroupID) ([]Payout, error)
	UpdatePayout(ctx context.Context, p *Payout) error
}

// =============================================================================
// AUDIT LOG - Append-only activity stream
// =============================================================================

type EntityType string

const (
	EntityGroup        EntityType = "group"
	EntityMember       EntityType = "member"
	EntityCycle        EntityType = "cycle"
	EntityContribution EntityType = "contribution"
	EntityPayout       EntityType = "payout"
	EntityInvite       EntityType = "invite"
)

// AuditEntry records who did what to which entity. Immutable once appended.
type AuditEntry struct {
	ID         string
	GroupID    GroupID
	ActorID    UserID
	EntityType EntityType
	EntityID   string
	Action     string // free-form verb: "start", "close", "submit", ...
	Metadata   map[string]any
	CreatedAt  time.Time
}

type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// ListAudit returns the most recent entries for a group, newest first.
	ListAudit(ctx context.Context, groupID GroupID, limit int) ([]AuditEntry, error)
}

// =============================================================================
// NOTIFICATIONS - Append-only, consumed by UI bells
// =============================================================================

type Notification struct {
	ID        string
	UserID    UserID
	GroupID   *GroupID
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	Read      bool
	CreatedAt time.Time
}

type NotificationLog interface {
	AppendNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID UserID, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

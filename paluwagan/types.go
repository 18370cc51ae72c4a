/*
Package paluwagan provides the core engine for rotating-savings groups.

PURPOSE:
  A paluwagan "branch" is a fixed-size group of members who each contribute
  a set amount per cycle; every cycle the pooled contributions are paid out
  to one member, rotating through the group by payout position. This package
  contains the full financial lifecycle:
  - Cycle scheduling (weekly / biweekly / monthly windows)
  - Payout-order assignment (fixed / lottery / organizer-assigned)
  - Cross-group membership limits
  - Group lifecycle orchestration (forming -> active -> completed)
  - Contribution and payout state machines

KEY CONCEPTS IN THIS FILE (types.go):
  - Group: one branch with fixed capacity and a contribution amount
  - Member: a (group, user) pair with role, status, and payout position
  - Cycle: one rotation window with a single payout recipient
  - Contribution: one member's required payment for one cycle
  - Payout: the pooled disbursement for one cycle

DESIGN PRINCIPLES:
  1. Precision: All money uses decimal.Decimal, never float64
  2. Type Safety: Strong ID types prevent mixing group/member/cycle IDs
  3. Soft Deletion: Groups and members are status-flagged, never removed
  4. Derived State: Summaries are recomputed from rows, not cached

SEE ALSO:
  - schedule.go: Cycle window arithmetic
  - order.go: Payout-order assignment
  - lifecycle.go: Start and cycle advancement
  - statemachine.go: Contribution/payout transitions
*/
package paluwagan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GroupID string
type UserID string
type MemberID string
type CycleID string
type ContributionID string
type PayoutID string

// =============================================================================
// FREQUENCY - How often a cycle turns over
// =============================================================================

type Frequency string

const (
	FreqWeekly   Frequency = "weekly"
	FreqBiweekly Frequency = "biweekly"
	FreqMonthly  Frequency = "monthly"
)

// MonthlyFactor is the multiplier used to normalize a per-cycle contribution
// to a per-month rate (weekly x4, biweekly x2, monthly x1). Used by the
// membership limit validator for cross-frequency comparison.
func (f Frequency) MonthlyFactor() decimal.Decimal {
	switch f {
	case FreqWeekly:
		return decimal.NewFromInt(4)
	case FreqBiweekly:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

func (f Frequency) Valid() bool {
	switch f {
	case FreqWeekly, FreqBiweekly, FreqMonthly:
		return true
	}
	return false
}

// =============================================================================
// STATUS ENUMS
// =============================================================================

type GroupStatus string

const (
	GroupForming   GroupStatus = "forming"
	GroupActive    GroupStatus = "active"
	GroupCompleted GroupStatus = "completed"
	GroupCancelled GroupStatus = "cancelled"
)

type MemberRole string

const (
	RoleOrganizer MemberRole = "organizer"
	RoleMember    MemberRole = "member"
)

type MemberStatus string

const (
	MemberPending MemberStatus = "pending"
	MemberActive  MemberStatus = "active"
	MemberFrozen  MemberStatus = "frozen"
	MemberRemoved MemberStatus = "removed"
)

type CycleStatus string

const (
	CycleUpcoming CycleStatus = "upcoming"
	CycleOpen     CycleStatus = "open"
	CycleClosing  CycleStatus = "closing"
	CycleClosed   CycleStatus = "closed"
)

type ContributionStatus string

const (
	ContribUnpaid       ContributionStatus = "unpaid"
	ContribPendingProof ContributionStatus = "pending_proof"
	ContribConfirmed    ContributionStatus = "paid_confirmed"
	ContribDisputed     ContributionStatus = "disputed"
)

type PayoutStatus string

const (
	PayoutScheduled PayoutStatus = "scheduled"
	PayoutSent      PayoutStatus = "sent_by_organizer"
	PayoutConfirmed PayoutStatus = "confirmed_by_recipient"
	PayoutDisputed  PayoutStatus = "disputed"
)

type OrderMethod string

const (
	OrderFixed             OrderMethod = "fixed"
	OrderLottery           OrderMethod = "lottery"
	OrderOrganizerAssigned OrderMethod = "organizer_assigned"
)

func (m OrderMethod) Valid() bool {
	switch m {
	case OrderFixed, OrderLottery, OrderOrganizerAssigned:
		return true
	}
	return false
}

// =============================================================================
// ORGANIZER FEE
// =============================================================================

type FeeMode string

const (
	FeePercent FeeMode = "percent"
	FeeFixed   FeeMode = "fixed"
)

// Fee percentage policy bounds. Percent fees outside [MinFeePercent,
// MaxFeePercent] are rejected at group creation.
var (
	DefaultFeePercent = decimal.NewFromInt(5)
	MinFeePercent     = decimal.NewFromInt(3)
	MaxFeePercent     = decimal.NewFromInt(10)
)

// OrganizerFee is the organizer's cut of each payout, either a percentage of
// the gross pool or a fixed amount per cycle.
type OrganizerFee struct {
	Mode    FeeMode
	Percent decimal.Decimal // used when Mode == FeePercent
	Amount  decimal.Decimal // used when Mode == FeeFixed
}

// DefaultOrganizerFee is the policy default: 5% of the gross pool.
func DefaultOrganizerFee() OrganizerFee {
	return OrganizerFee{Mode: FeePercent, Percent: DefaultFeePercent}
}

// FeeOn returns the fee taken from a gross payout. Fixed fees are capped at
// the gross so the net never goes negative.
func (f OrganizerFee) FeeOn(gross decimal.Decimal) decimal.Decimal {
	switch f.Mode {
	case FeeFixed:
		if f.Amount.GreaterThan(gross) {
			return gross
		}
		return f.Amount
	default:
		return gross.Mul(f.Percent).Div(decimal.NewFromInt(100)).Round(2)
	}
}

// Validate checks fee bounds. Percent fees must sit in [3%, 10%]; fixed fees
// must be non-negative.
func (f OrganizerFee) Validate() error {
	switch f.Mode {
	case FeePercent:
		if f.Percent.LessThan(MinFeePercent) || f.Percent.GreaterThan(MaxFeePercent) {
			return &ValidationError{Field: "fee_percent", Message: "organizer fee must be between 3% and 10%"}
		}
	case FeeFixed:
		if f.Amount.IsNegative() {
			return &ValidationError{Field: "fee_amount", Message: "organizer fee cannot be negative"}
		}
	default:
		return &ValidationError{Field: "fee_mode", Message: "unknown fee mode"}
	}
	return nil
}

// =============================================================================
// GROUP RULES - Typed configuration, not an open map
// =============================================================================

// GroupRules holds the per-group behavior switches consumed by the engine.
// Unknown keys in stored rules JSON are dropped at the parse boundary; see
// factory.ParseRules.
type GroupRules struct {
	// GracePeriodDays extends the due date before the auto-advance scheduler
	// considers an open cycle overdue. Does not affect is_late on
	// contributions, which is always measured against the cycle due date.
	GracePeriodDays int

	// AutoApproveMembers admits join requests as active immediately instead
	// of pending organizer approval.
	AutoApproveMembers bool

	// AllowMemberInvites lets non-organizer members issue invites. Consumed
	// by the surrounding platform; carried here so it round-trips.
	AllowMemberInvites bool
}

// =============================================================================
// ENTITIES
// =============================================================================

// Group is one paluwagan branch. Member slots are fixed at creation and
// never resized; status only moves forming -> active -> completed, with
// cancelled as a terminal side-exit from forming.
type Group struct {
	ID          GroupID
	OrganizerID UserID
	Name        string

	Amount    decimal.Decimal // contribution per member per cycle
	Frequency Frequency
	StartDate Date
	Capacity  int // fixed member-slot count == number of cycles

	OrderMethod OrderMethod
	Status      GroupStatus
	Fee         OrganizerFee
	Rules       GroupRules

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member links a user to a group. A user has at most one non-removed row per
// group. PayoutPosition is assigned exactly once at group start (or when the
// organizer assigns it earlier) and never reassigned.
type Member struct {
	ID      MemberID
	GroupID GroupID
	UserID  UserID

	Role   MemberRole
	Status MemberStatus

	// 1-based rotation slot; nil until assigned.
	PayoutPosition *int

	JoinedAt  time.Time
	UpdatedAt time.Time
}

// Cycle is one rotation window. Cycle numbers are contiguous from 1 and the
// full set equals the group capacity, generated in one batch at start time.
type Cycle struct {
	ID      CycleID
	GroupID GroupID
	Number  int

	Start Date
	Due   Date

	// The member whose payout position equals Number; nil when capacity
	// exceeds the active member count at start.
	RecipientID *UserID

	Status CycleStatus
}

// Contribution is one member's required payment for one cycle. Exactly one
// exists per (cycle, member) pair, created when the cycle opens.
type Contribution struct {
	ID       ContributionID
	CycleID  CycleID
	GroupID  GroupID
	MemberID MemberID
	UserID   UserID

	Amount decimal.Decimal
	Status ContributionStatus

	ProofRef      string
	Note          string
	DisputeReason string

	// Computed once at submission against the cycle due date; never
	// retroactively updated.
	IsLate      bool
	SubmittedAt *time.Time
	ConfirmedBy *UserID
}

// Payout is the pooled disbursement for one cycle. Gross is contribution
// amount x active member count at cycle-open time; the organizer fee is
// split out so the recipient sees the net.
type Payout struct {
	ID          PayoutID
	CycleID     CycleID
	GroupID     GroupID
	RecipientID UserID

	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal

	Status        PayoutStatus
	Note          string
	DisputeReason string
	SentAt        *time.Time
	ConfirmedAt   *time.Time
}

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// ActiveMembers filters a member list to status=active.
func ActiveMembers(members []Member) []Member {
	var active []Member
	for _, m := range members {
		if m.Status == MemberActive {
			active = append(active, m)
		}
	}
	return active
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific formatting (dates as YYYY-MM-DD, money as strings)
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts serialize as decimal strings ("1500", "75.50") rather than
  JSON numbers, so clients are not exposed to float rounding.

VALIDATION:
  Validation is done in the domain services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: GroupJSON, the group-creation body
*/
package api

import (
	"time"

	"github.com/hiraya/paluwagan-engine/paluwagan"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// GroupDTO represents a branch in API responses.
type GroupDTO struct {
	ID          string `json:"id"`
	OrganizerID string `json:"organizer_id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	Capacity    int    `json:"capacity"`
	OrderMethod string `json:"order_method"`
	Status      string `json:"status"`
	FeeMode     string `json:"fee_mode"`
	FeePercent  string `json:"fee_percent,omitempty"`
	FeeAmount   string `json:"fee_amount,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toGroupDTO(g *paluwagan.Group) GroupDTO {
	dto := GroupDTO{
		ID:          string(g.ID),
		OrganizerID: string(g.OrganizerID),
		Name:        g.Name,
		Amount:      g.Amount.String(),
		Frequency:   string(g.Frequency),
		StartDate:   g.StartDate.String(),
		Capacity:    g.Capacity,
		OrderMethod: string(g.OrderMethod),
		Status:      string(g.Status),
		FeeMode:     string(g.Fee.Mode),
		CreatedAt:   g.CreatedAt.Format(time.RFC3339),
	}
	switch g.Fee.Mode {
	case paluwagan.FeeFixed:
		dto.FeeAmount = g.Fee.Amount.String()
	default:
		dto.FeePercent = g.Fee.Percent.String()
	}
	return dto
}

// MemberDTO represents a membership row in API responses.
type MemberDTO struct {
	ID             string `json:"id"`
	GroupID        string `json:"group_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	PayoutPosition *int   `json:"payout_position,omitempty"`
	JoinedAt       string `json:"joined_at,omitempty"`
}

func toMemberDTO(m *paluwagan.Member) MemberDTO {
	return MemberDTO{
		ID:             string(m.ID),
		GroupID:        string(m.GroupID),
		UserID:         string(m.UserID),
		Role:           string(m.Role),
		Status:         string(m.Status),
		PayoutPosition: m.PayoutPosition,
		JoinedAt:       m.JoinedAt.Format(time.RFC3339),
	}
}

// CycleDTO represents a rotation window.
type CycleDTO struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	Number      int     `json:"number"`
	Start       string  `json:"start"`
	Due         string  `json:"due"`
	RecipientID *string `json:"recipient_id,omitempty"`
	Status      string  `json:"status"`
}

func toCycleDTO(c *paluwagan.Cycle) CycleDTO {
	dto := CycleDTO{
		ID:      string(c.ID),
		GroupID: string(c.GroupID),
		Number:  c.Number,
		Start:   c.Start.String(),
		Due:     c.Due.String(),
		Status:  string(c.Status),
	}
	if c.RecipientID != nil {
		r := string(*c.RecipientID)
		dto.RecipientID = &r
	}
	return dto
}

// ContributionDTO represents one member's payment for one cycle.
type ContributionDTO struct {
	ID            string  `json:"id"`
	CycleID       string  `json:"cycle_id"`
	GroupID       string  `json:"group_id"`
	MemberID      string  `json:"member_id"`
	UserID        string  `json:"user_id"`
	Amount        string  `json:"amount"`
	Status        string  `json:"status"`
	ProofRef      string  `json:"proof_ref,omitempty"`
	Note          string  `json:"note,omitempty"`
	DisputeReason string  `json:"dispute_reason,omitempty"`
	IsLate        bool    `json:"is_late"`
	SubmittedAt   *string `json:"submitted_at,omitempty"`
	ConfirmedBy   *string `json:"confirmed_by,omitempty"`
}

func toContributionDTO(c *paluwagan.Contribution) ContributionDTO {
	dto := ContributionDTO{
		ID:            string(c.ID),
		CycleID:       string(c.CycleID),
		GroupID:       string(c.GroupID),
		MemberID:      string(c.MemberID),
		UserID:        string(c.UserID),
		Amount:        c.Amount.String(),
		Status:        string(c.Status),
		ProofRef:      c.ProofRef,
		Note:          c.Note,
		DisputeReason: c.DisputeReason,
		IsLate:        c.IsLate,
	}
	if c.SubmittedAt != nil {
		s := c.SubmittedAt.Format(time.RFC3339)
		dto.SubmittedAt = &s
	}
	if c.ConfirmedBy != nil {
		u := string(*c.ConfirmedBy)
		dto.ConfirmedBy = &u
	}
	return dto
}

// PayoutDTO represents the pooled disbursement for one cycle.
type PayoutDTO struct {
	ID            string  `json:"id"`
	CycleID       string  `json:"cycle_id"`
	GroupID       string  `json:"group_id"`
	RecipientID   string  `json:"recipient_id"`
	Gross         string  `json:"gross"`
	Fee           string  `json:"fee"`
	Net           string  `json:"net"`
	Status        string  `json:"status"`
	Note          string  `json:"note,omitempty"`
	DisputeReason string  `json:"dispute_reason,omitempty"`
	SentAt        *string `json:"sent_at,omitempty"`
	ConfirmedAt   *string `json:"confirmed_at,omitempty"`
}

func toPayoutDTO(p *paluwagan.Payout) PayoutDTO {
	dto := PayoutDTO{
		ID:            string(p.ID),
		CycleID:       string(p.CycleID),
		GroupID:       string(p.GroupID),
		RecipientID:   string(p.RecipientID),
		Gross:         p.Gross.String(),
		Fee:           p.Fee.String(),
		Net:           p.Net.String(),
		Status:        string(p.Status),
		Note:          p.Note,
		DisputeReason: p.DisputeReason,
	}
	if p.SentAt != nil {
		s := p.SentAt.Format(time.RFC3339)
		dto.SentAt = &s
	}
	if p.ConfirmedAt != nil {
		s := p.ConfirmedAt.Format(time.RFC3339)
		dto.ConfirmedAt = &s
	}
	return dto
}

// SummaryDTO represents a group's financial summary.
type SummaryDTO struct {
	GroupID      string              `json:"group_id"`
	Status       string              `json:"status"`
	CyclesTotal  int                 `json:"cycles_total"`
	CyclesClosed int                 `json:"cycles_closed"`
	OpenCycle    *int                `json:"open_cycle,omitempty"`
	Expected     string              `json:"expected"`
	Collected    string              `json:"collected"`
	Outstanding  string              `json:"outstanding"`
	Disputed     string              `json:"disputed"`
	LateCount    int                 `json:"late_count"`
	Members      []MemberStandingDTO `json:"members"`
}

// MemberStandingDTO is one member's record within a summary.
type MemberStandingDTO struct {
	MemberID       string `json:"member_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	PayoutPosition *int   `json:"payout_position,omitempty"`
	Paid           string `json:"paid"`
	Due            string `json:"due"`
	LateCount      int    `json:"late_count"`
}

func toSummaryDTO(s *paluwagan.GroupSummary) SummaryDTO {
	dto := SummaryDTO{
		GroupID:      string(s.GroupID),
		Status:       string(s.Status),
		CyclesTotal:  s.CyclesTotal,
		CyclesClosed: s.CyclesClosed,
		OpenCycle:    s.OpenCycle,
		Expected:     s.Expected.String(),
		Collected:    s.Collected.String(),
		Outstanding:  s.Outstanding.String(),
		Disputed:     s.Disputed.String(),
		LateCount:    s.LateCount,
		Members:      make([]MemberStandingDTO, 0, len(s.Members)),
	}
	for _, m := range s.Members {
		dto.Members = append(dto.Members, MemberStandingDTO{
			MemberID:       string(m.MemberID),
			UserID:         string(m.UserID),
			Status:         string(m.Status),
			PayoutPosition: m.PayoutPosition,
			Paid:           m.Paid.String(),
			Due:            m.Due.String(),
			LateCount:      m.LateCount,
		})
	}
	return dto
}

// LimitDecisionDTO reports whether a user can take on another branch.
type LimitDecisionDTO struct {
	CanJoin               bool   `json:"can_join"`
	Reason                string `json:"reason,omitempty"`
	ReasonCode            string `json:"reason_code,omitempty"`
	CurrentBranches       int    `json:"current_branches"`
	CurrentMonthlyTotal   string `json:"current_monthly_total"`
	ProjectedMonthlyTotal string `json:"projected_monthly_total"`
}

func toLimitDecisionDTO(d *paluwagan.LimitDecision) LimitDecisionDTO {
	return LimitDecisionDTO{
		CanJoin:               d.CanJoin,
		Reason:                d.Reason,
		ReasonCode:            string(d.ReasonCode),
		CurrentBranches:       d.CurrentBranches,
		CurrentMonthlyTotal:   d.CurrentMonthlyTotal.String(),
		ProjectedMonthlyTotal: d.ProjectedMonthlyTotal.String(),
	}
}

// MembershipDTO is one row of a user's cross-group exposure.
type MembershipDTO struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Frequency string `json:"frequency"`
}

// AuditEntryDTO is one activity feed row.
type AuditEntryDTO struct {
	ID         string         `json:"id"`
	GroupID    string         `json:"group_id"`
	ActorID    string         `json:"actor_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// NotificationDTO is one user-facing notification.
type NotificationDTO struct {
	ID        string         `json:"id"`
	GroupID   *string        `json:"group_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"created_at"`
}

// StartResultDTO is the response to a start call.
type StartResultDTO struct {
	Group       GroupDTO      `json:"group"`
	Assignments []PositionDTO `json:"assignments"`
	FirstCycle  CycleDTO      `json:"first_cycle"`
}

// PositionDTO is one (user, payout slot) pair.
type PositionDTO struct {
	UserID   string `json:"user_id"`
	Position int    `json:"position"`
}

// AdvanceResultDTO is the response to an advance call.
type AdvanceResultDTO struct {
	ClosedCycle CycleDTO  `json:"closed_cycle"`
	OpenedCycle *CycleDTO `json:"opened_cycle,omitempty"`
	Completed   bool      `json:"completed"`
}

// JoinResultDTO is the response to a join request.
type JoinResultDTO struct {
	Member MemberDTO        `json:"member"`
	Limits LimitDecisionDTO `json:"limits"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitContributionRequest carries payment proof.
type SubmitContributionRequest struct {
	ProofRef string `json:"proof_ref"`
	Note     string `json:"note,omitempty"`
}

// DisputeRequest carries a dispute reason.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// PayoutNoteRequest carries an optional note on sent/confirm calls.
type PayoutNoteRequest struct {
	Note string `json:"note,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

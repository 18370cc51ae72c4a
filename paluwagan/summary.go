package paluwagan

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUP SUMMARY - Derived financial state, recomputed on demand
// =============================================================================

// GroupSummary is the organizer's dashboard view of a branch: expected vs
// collected money and each member's standing. It is derived by replaying the
// contribution rows; nothing here is cached or stored.
type GroupSummary struct {
	GroupID GroupID
	Status  GroupStatus

	CyclesTotal  int
	CyclesClosed int
	OpenCycle    *int // cycle number, nil when none is open

	Expected    decimal.Decimal // sum of all created contributions
	Collected   decimal.Decimal // confirmed only
	Outstanding decimal.Decimal // unpaid + pending_proof
	Disputed    decimal.Decimal
	LateCount   int

	Members []MemberStanding
}

// MemberStanding is one member's record across all cycles so far.
type MemberStanding struct {
	MemberID       MemberID
	UserID         UserID
	Status         MemberStatus
	PayoutPosition *int

	Paid      decimal.Decimal
	Due       decimal.Decimal
	LateCount int
}

type SummaryService struct {
	Store Store
}

func NewSummaryService(store Store) *SummaryService {
	return &SummaryService{Store: store}
}

// Summarize builds the group's financial summary from its rows.
func (s *SummaryService) Summarize(ctx context.Context, groupID GroupID) (*GroupSummary, error) {
	group, err := s.Store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	cycles, err := s.Store.ListCycles(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.Store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	contributions, err := s.Store.ListContributionsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	summary := &GroupSummary{
		GroupID:     groupID,
		Status:      group.Status,
		CyclesTotal: len(cycles),
		Expected:    decimal.Zero,
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
		Disputed:    decimal.Zero,
	}
	for _, c := range cycles {
		switch c.Status {
		case CycleClosed:
			summary.CyclesClosed++
		case CycleOpen:
			n := c.Number
			summary.OpenCycle = &n
		}
	}

	standings := make(map[MemberID]*MemberStanding, len(members))
	for _, m := range members {
		standings[m.ID] = &MemberStanding{
			MemberID:       m.ID,
			UserID:         m.UserID,
			Status:         m.Status,
			PayoutPosition: m.PayoutPosition,
			Paid:           decimal.Zero,
			Due:            decimal.Zero,
		}
	}

	for _, c := range contributions {
		summary.Expected = summary.Expected.Add(c.Amount)
		standing := standings[c.MemberID]

		switch c.Status {
		case ContribConfirmed:
			summary.Collected = summary.Collected.Add(c.Amount)
			if standing != nil {
				standing.Paid = standing.Paid.Add(c.Amount)
			}
		case ContribDisputed:
			summary.Disputed = summary.Disputed.Add(c.Amount)
		default: // unpaid, pending_proof
			summary.Outstanding = summary.Outstanding.Add(c.Amount)
			if standing != nil {
				standing.Due = standing.Due.Add(c.Amount)
			}
		}
		if c.IsLate {
			summary.LateCount++
			if standing != nil {
				standing.LateCount++
			}
		}
	}

	for _, m := range members {
		summary.Members = append(summary.Members, *standings[m.ID])
	}
	return summary, nil
}

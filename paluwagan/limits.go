/*
limits.go - Cross-group membership limits

PURPOSE:
  A user's aggregate exposure across branches is capped two ways:
  - Branch count: at most MaxBranches active-or-pending memberships
  - Budget: the sum of monthly-equivalent contributions may not exceed
    MaxMonthlyTotal

  Monthly-equivalent normalizes each branch's per-cycle amount to a
  per-month rate (weekly x4, biweekly x2, monthly x1) so branches with
  different frequencies are comparable.

  Only live branches count. Memberships in cancelled or completed groups
  keep their rows but release their headroom toward both ceilings.

DECISION SEMANTICS:
  Validate is read-only and returns a LimitDecision; it never writes. The
  branch-count ceiling is checked before the budget, so when both would
  fail the rejection reason names the branch limit. Budget rejections
  trigger strictly above the ceiling: a projection of exactly
  MaxMonthlyTotal passes.

RACE NOTE:
  Two simultaneous joins could both pass validation if run outside the
  insert. The membership service therefore calls Validate inside the same
  WithTx that inserts the membership row; both store implementations
  serialize writers, closing the race.

SEE ALSO:
  - members.go: The only caller that acts on the decision
*/
package paluwagan

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LIMIT POLICY - Configurable ceilings
// =============================================================================

type LimitPolicy struct {
	MaxBranches     int
	MaxMonthlyTotal decimal.Decimal
}

// DefaultLimitPolicy returns the platform defaults: 3 branches, PHP 3,000
// monthly-equivalent.
func DefaultLimitPolicy() LimitPolicy {
	return LimitPolicy{
		MaxBranches:     3,
		MaxMonthlyTotal: decimal.NewFromInt(3000),
	}
}

// MonthlyEquivalent normalizes a per-cycle contribution to a per-month rate.
func MonthlyEquivalent(amount decimal.Decimal, freq Frequency) decimal.Decimal {
	return amount.Mul(freq.MonthlyFactor())
}

// =============================================================================
// LIMIT DECISION
// =============================================================================

type LimitReason string

const (
	LimitReasonNone     LimitReason = ""
	LimitReasonBranches LimitReason = "branch_limit"
	LimitReasonBudget   LimitReason = "budget_limit"
)

// LimitDecision is the full outcome of a limit check, including the numbers
// that produced it so the UI can explain the rejection precisely.
type LimitDecision struct {
	CanJoin    bool
	Reason     string
	ReasonCode LimitReason

	CurrentBranches       int
	CurrentMonthlyTotal   decimal.Decimal
	ProjectedMonthlyTotal decimal.Decimal
}

// =============================================================================
// VALIDATOR
// =============================================================================

type LimitValidator struct {
	Memberships MembershipReader
	Policy      LimitPolicy
}

// Validate computes the user's aggregate exposure and decides whether a new
// membership at (amount, freq) is permittable. Read-only; callers that act
// on an approval must do so in the same transaction (see members.go).
func (v *LimitValidator) Validate(ctx context.Context, userID UserID, amount decimal.Decimal, freq Frequency) (*LimitDecision, error) {
	memberships, err := v.Memberships.ListUserMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships for %s: %w", userID, err)
	}

	branches := 0
	total := decimal.Zero
	for _, m := range memberships {
		if m.Status != MemberActive && m.Status != MemberPending {
			continue
		}
		// Finished rotations release their headroom even though the member
		// rows stay active.
		if m.GroupStatus == GroupCancelled || m.GroupStatus == GroupCompleted {
			continue
		}
		branches++
		total = total.Add(MonthlyEquivalent(m.Amount, m.Frequency))
	}

	projected := total.Add(MonthlyEquivalent(amount, freq))

	decision := &LimitDecision{
		CanJoin:               true,
		CurrentBranches:       branches,
		CurrentMonthlyTotal:   total,
		ProjectedMonthlyTotal: projected,
	}

	// Branch-count ceiling takes priority when both would fail.
	if branches >= v.Policy.MaxBranches {
		decision.CanJoin = false
		decision.ReasonCode = LimitReasonBranches
		decision.Reason = fmt.Sprintf("already in %d of %d allowed branches", branches, v.Policy.MaxBranches)
		return decision, nil
	}

	if projected.GreaterThan(v.Policy.MaxMonthlyTotal) {
		decision.CanJoin = false
		decision.ReasonCode = LimitReasonBudget
		decision.Reason = fmt.Sprintf(
			"monthly contribution total would be %s, over the %s limit",
			projected.StringFixed(2), v.Policy.MaxMonthlyTotal.StringFixed(2))
		return decision, nil
	}

	return decision, nil
}

package paluwagan_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraya/paluwagan-engine/paluwagan"
)

// fakeMemberships satisfies paluwagan.MembershipReader with a canned list.
type fakeMemberships []paluwagan.MembershipDetail

func (f fakeMemberships) ListUserMemberships(context.Context, paluwagan.UserID) ([]paluwagan.MembershipDetail, error) {
	return f, nil
}

func newValidator(memberships ...paluwagan.MembershipDetail) *paluwagan.LimitValidator {
	return &paluwagan.LimitValidator{
		Memberships: fakeMemberships(memberships),
		Policy:      paluwagan.DefaultLimitPolicy(),
	}
}

func membership(status paluwagan.MemberStatus, amount int64, freq paluwagan.Frequency) paluwagan.MembershipDetail {
	return paluwagan.MembershipDetail{
		GroupID:     paluwagan.GroupID("g-" + string(freq)),
		GroupStatus: paluwagan.GroupActive,
		Status:      status,
		Amount:      decimal.NewFromInt(amount),
		Frequency:   freq,
	}
}

// =============================================================================
// MONTHLY EQUIVALENT
// =============================================================================

func TestMonthlyEquivalent(t *testing.T) {
	// GIVEN: The same per-cycle amount at each frequency
	// WHEN: Normalizing to a per-month rate
	// THEN: Weekly counts x4, biweekly x2, monthly x1

	amount := decimal.NewFromInt(500)

	assert.True(t, decimal.NewFromInt(2000).Equal(paluwagan.MonthlyEquivalent(amount, paluwagan.FreqWeekly)))
	assert.True(t, decimal.NewFromInt(1000).Equal(paluwagan.MonthlyEquivalent(amount, paluwagan.FreqBiweekly)))
	assert.True(t, decimal.NewFromInt(500).Equal(paluwagan.MonthlyEquivalent(amount, paluwagan.FreqMonthly)))
}

// =============================================================================
// BUDGET CEILING
// =============================================================================

func TestLimitValidator_BudgetBoundary(t *testing.T) {
	// GIVEN: A user already committing 2,500/month
	// WHEN: Checking a join that lands exactly on the 3,000 ceiling
	// THEN: It passes; one peso more is rejected with the budget reason

	v := newValidator(
		membership(paluwagan.MemberActive, 2500, paluwagan.FreqMonthly),
	)

	exact, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(500), paluwagan.FreqMonthly)
	require.NoError(t, err)
	assert.True(t, exact.CanJoin)
	assert.Equal(t, paluwagan.LimitReasonNone, exact.ReasonCode)
	assert.True(t, decimal.NewFromInt(3000).Equal(exact.ProjectedMonthlyTotal))

	over, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(501), paluwagan.FreqMonthly)
	require.NoError(t, err)
	assert.False(t, over.CanJoin)
	assert.Equal(t, paluwagan.LimitReasonBudget, over.ReasonCode)
	assert.NotEmpty(t, over.Reason)
}

func TestLimitValidator_FrequencyNormalization(t *testing.T) {
	// GIVEN: A user in a 600/week branch (2,400 monthly-equivalent)
	// WHEN: Checking a 400/biweekly join (800 monthly-equivalent)
	// THEN: The projection of 3,200 breaches the budget

	v := newValidator(
		membership(paluwagan.MemberActive, 600, paluwagan.FreqWeekly),
	)

	d, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(400), paluwagan.FreqBiweekly)
	require.NoError(t, err)
	assert.False(t, d.CanJoin)
	assert.Equal(t, paluwagan.LimitReasonBudget, d.ReasonCode)
	assert.True(t, decimal.NewFromInt(2400).Equal(d.CurrentMonthlyTotal))
	assert.True(t, decimal.NewFromInt(3200).Equal(d.ProjectedMonthlyTotal))
}

// =============================================================================
// BRANCH CEILING
// =============================================================================

func TestLimitValidator_BranchCeiling(t *testing.T) {
	// GIVEN: A user already in three branches, each tiny
	// WHEN: Checking a fourth join
	// THEN: Rejected for the branch count even though the budget has room

	v := newValidator(
		membership(paluwagan.MemberActive, 100, paluwagan.FreqMonthly),
		membership(paluwagan.MemberActive, 100, paluwagan.FreqMonthly),
		membership(paluwagan.MemberPending, 100, paluwagan.FreqMonthly),
	)

	d, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(100), paluwagan.FreqMonthly)
	require.NoError(t, err)
	assert.False(t, d.CanJoin)
	assert.Equal(t, paluwagan.LimitReasonBranches, d.ReasonCode)
	assert.Equal(t, 3, d.CurrentBranches)
}

func TestLimitValidator_BranchCeilingTakesPriority(t *testing.T) {
	// GIVEN: A user over both ceilings at once
	// WHEN: Validating
	// THEN: The rejection names the branch limit, not the budget

	v := newValidator(
		membership(paluwagan.MemberActive, 1500, paluwagan.FreqMonthly),
		membership(paluwagan.MemberActive, 1500, paluwagan.FreqMonthly),
		membership(paluwagan.MemberActive, 1500, paluwagan.FreqMonthly),
	)

	d, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(1500), paluwagan.FreqMonthly)
	require.NoError(t, err)
	assert.False(t, d.CanJoin)
	assert.Equal(t, paluwagan.LimitReasonBranches, d.ReasonCode)
}

func TestLimitValidator_FinishedGroupsReleaseHeadroom(t *testing.T) {
	// GIVEN: Active member rows in a cancelled and a completed group,
	//        plus one live branch at 1,000/month
	// WHEN: Validating a 2,000/month join that only fits without them
	// THEN: The finished branches count toward neither ceiling

	cancelled := membership(paluwagan.MemberActive, 2000, paluwagan.FreqMonthly)
	cancelled.GroupStatus = paluwagan.GroupCancelled
	completed := membership(paluwagan.MemberActive, 2000, paluwagan.FreqMonthly)
	completed.GroupStatus = paluwagan.GroupCompleted

	v := newValidator(
		cancelled,
		completed,
		membership(paluwagan.MemberActive, 1000, paluwagan.FreqMonthly),
	)

	d, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(2000), paluwagan.FreqMonthly)
	require.NoError(t, err)
	assert.True(t, d.CanJoin)
	assert.Equal(t, 1, d.CurrentBranches)
	assert.True(t, decimal.NewFromInt(1000).Equal(d.CurrentMonthlyTotal))
	assert.True(t, decimal.NewFromInt(3000).Equal(d.ProjectedMonthlyTotal))
}

func TestLimitValidator_IgnoresFrozenAndRemoved(t *testing.T) {
	// GIVEN: A user whose only memberships are frozen or removed
	// WHEN: Validating a fresh join
	// THEN: Neither ceiling counts them

	v := newValidator(
		membership(paluwagan.MemberFrozen, 2000, paluwagan.FreqMonthly),
		membership(paluwagan.MemberRemoved, 2000, paluwagan.FreqMonthly),
		membership(paluwagan.MemberFrozen, 2000, paluwagan.FreqMonthly),
	)

	d, err := v.Validate(context.Background(), "dina", decimal.NewFromInt(3000), paluwagan.FreqMonthly)
	require.NoError(t, err)
	assert.True(t, d.CanJoin)
	assert.Equal(t, 0, d.CurrentBranches)
	assert.True(t, decimal.Zero.Equal(d.CurrentMonthlyTotal))
}

package paluwagan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraya/paluwagan-engine/paluwagan"
	"github.com/hiraya/paluwagan-engine/paluwagan/store"
)

// contributionOf finds a user's contribution row in a cycle.
func contributionOf(t *testing.T, st *store.Memory, cycleID paluwagan.CycleID, userID paluwagan.UserID) *paluwagan.Contribution {
	t.Helper()
	contributions, err := st.ListContributionsByCycle(context.Background(), cycleID)
	require.NoError(t, err)
	for i := range contributions {
		if contributions[i].UserID == userID {
			return &contributions[i]
		}
	}
	t.Fatalf("no contribution for %s in cycle %s", userID, cycleID)
	return nil
}

// =============================================================================
// CONTRIBUTION TRANSITIONS
// =============================================================================

func TestContribution_Submit(t *testing.T) {
	// GIVEN: An open cycle due 2024-06-09 and ben's unpaid contribution
	// WHEN: Ben submits proof on June 5th
	// THEN: The row moves to pending_proof, on time, with the proof recorded

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	svc.Now = juneClock(5)

	updated, err := svc.Submit(context.Background(), c.ID, "ben", "gcash-ref-123", "sent via GCash")
	require.NoError(t, err)

	assert.Equal(t, paluwagan.ContribPendingProof, updated.Status)
	assert.False(t, updated.IsLate)
	assert.Equal(t, "gcash-ref-123", updated.ProofRef)
	require.NotNil(t, updated.SubmittedAt)
}

func TestContribution_SubmitAfterDueIsLate(t *testing.T) {
	// GIVEN: Cycle 1 due 2024-06-09
	// WHEN: Ben submits on June 10th
	// THEN: The contribution is flagged late, and the flag stays set after
	//       the organizer confirms

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	svc.Now = juneClock(10)

	updated, err := svc.Submit(context.Background(), c.ID, "ben", "ref", "")
	require.NoError(t, err)
	assert.True(t, updated.IsLate)

	confirmed, err := svc.Confirm(context.Background(), c.ID, "ana")
	require.NoError(t, err)
	assert.True(t, confirmed.IsLate, "late flag is frozen at submission")
}

func TestContribution_SubmitOwnerOnly(t *testing.T) {
	// GIVEN: Ana's unpaid contribution
	// WHEN: Ben tries to submit it
	// THEN: Rejected, and the row is untouched

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ana")

	svc := paluwagan.NewContributionService(st)
	_, err := svc.Submit(context.Background(), c.ID, "ben", "ref", "")
	assert.ErrorIs(t, err, paluwagan.ErrNotAuthorized)

	reloaded, err := st.GetContribution(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, paluwagan.ContribUnpaid, reloaded.Status)
	assert.Nil(t, reloaded.SubmittedAt)
}

func TestContribution_SubmitTwice(t *testing.T) {
	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	svc.Now = juneClock(5)
	_, err := svc.Submit(context.Background(), c.ID, "ben", "ref", "")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), c.ID, "ben", "ref-2", "")
	assert.ErrorIs(t, err, paluwagan.ErrInvalidState)
}

func TestContribution_ConfirmOrganizerOnly(t *testing.T) {
	// GIVEN: Ben's submitted contribution
	// WHEN: Carla (a regular member) tries to confirm, then ana does
	// THEN: Carla is rejected; ana's confirmation records her as confirmer

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	svc.Now = juneClock(5)
	_, err := svc.Submit(context.Background(), c.ID, "ben", "ref", "")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), c.ID, "carla")
	assert.ErrorIs(t, err, paluwagan.ErrNotAuthorized)

	confirmed, err := svc.Confirm(context.Background(), c.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, paluwagan.ContribConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, paluwagan.UserID("ana"), *confirmed.ConfirmedBy)
}

func TestContribution_ConfirmFromUnpaid(t *testing.T) {
	// GIVEN: A contribution with no submitted proof
	// WHEN: The organizer tries to confirm it
	// THEN: Rejected as an invalid state

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	_, err := svc.Confirm(context.Background(), c.ID, "ana")
	assert.ErrorIs(t, err, paluwagan.ErrInvalidState)
}

func TestContribution_Dispute(t *testing.T) {
	// GIVEN: An unpaid contribution
	// WHEN: The organizer disputes it with a reason, then disputes again
	// THEN: The first dispute lands; the second is rejected rather than
	//       silently absorbed

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)

	_, err := svc.Dispute(context.Background(), c.ID, "ana", "")
	var ve *paluwagan.ValidationError
	require.ErrorAs(t, err, &ve)

	disputed, err := svc.Dispute(context.Background(), c.ID, "ana", "no payment received")
	require.NoError(t, err)
	assert.Equal(t, paluwagan.ContribDisputed, disputed.Status)
	assert.Equal(t, "no payment received", disputed.DisputeReason)

	_, err = svc.Dispute(context.Background(), c.ID, "ana", "still nothing")
	assert.ErrorIs(t, err, paluwagan.ErrInvalidState)
}

func TestContribution_DisputeKeepsSubmissionNote(t *testing.T) {
	// GIVEN: A contribution ben submitted with a note
	// WHEN: The organizer disputes it
	// THEN: The dispute reason lands in its own field and ben's note
	//       survives untouched

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	svc.Now = juneClock(5)

	_, err := svc.Submit(context.Background(), c.ID, "ben", "gcash-ref-001", "paid via gcash")
	require.NoError(t, err)

	disputed, err := svc.Dispute(context.Background(), c.ID, "ana", "reference does not match")
	require.NoError(t, err)
	assert.Equal(t, "paid via gcash", disputed.Note)
	assert.Equal(t, "reference does not match", disputed.DisputeReason)
}

func TestContribution_DisputeByOutsider(t *testing.T) {
	// GIVEN: Ben's contribution
	// WHEN: Carla, neither owner nor organizer, disputes it
	// THEN: Rejected

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	c := contributionOf(t, st, result.FirstCycle.ID, "ben")

	svc := paluwagan.NewContributionService(st)
	_, err := svc.Dispute(context.Background(), c.ID, "carla", "looks fake")
	assert.ErrorIs(t, err, paluwagan.ErrNotAuthorized)
}

// =============================================================================
// PAYOUT TRANSITIONS
// =============================================================================

func TestPayout_MarkSentAndConfirm(t *testing.T) {
	// GIVEN: Cycle 2's scheduled payout to ben
	// WHEN: Ana marks it sent and ben confirms receipt
	// THEN: Timestamps land at each step; ana cannot confirm on ben's behalf

	st := store.NewMemory()
	group, _ := startedTrio(t, st)
	ctx := context.Background()

	lifecycle := paluwagan.NewLifecycleService(st)
	advance, err := lifecycle.AdvanceCycle(ctx, group.ID, "ana")
	require.NoError(t, err)
	payout, err := st.GetPayoutByCycle(ctx, advance.OpenedCycle.ID)
	require.NoError(t, err)
	require.Equal(t, paluwagan.UserID("ben"), payout.RecipientID)

	svc := paluwagan.NewPayoutService(st)
	svc.Now = juneClock(12)

	sent, err := svc.MarkSent(ctx, payout.ID, "ana", "sent via bank transfer")
	require.NoError(t, err)
	assert.Equal(t, paluwagan.PayoutSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, "sent via bank transfer", sent.Note)

	// The organizer is not the recipient here.
	_, err = svc.ConfirmReceived(ctx, payout.ID, "ana", "")
	assert.ErrorIs(t, err, paluwagan.ErrNotAuthorized)

	confirmed, err := svc.ConfirmReceived(ctx, payout.ID, "ben", "")
	require.NoError(t, err)
	assert.Equal(t, paluwagan.PayoutConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
}

func TestPayout_MarkSentOrganizerOnly(t *testing.T) {
	st := store.NewMemory()
	_, result := startedTrio(t, st)
	payout, err := st.GetPayoutByCycle(context.Background(), result.FirstCycle.ID)
	require.NoError(t, err)

	svc := paluwagan.NewPayoutService(st)
	_, err = svc.MarkSent(context.Background(), payout.ID, "ben", "")
	assert.ErrorIs(t, err, paluwagan.ErrNotAuthorized)

	reloaded, err := st.GetPayout(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, paluwagan.PayoutScheduled, reloaded.Status)
	assert.Nil(t, reloaded.SentAt)
}

func TestPayout_ConfirmBeforeSent(t *testing.T) {
	// GIVEN: A payout still in scheduled
	// WHEN: The recipient confirms receipt
	// THEN: Rejected; the money has not been marked as moving yet

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	payout, err := st.GetPayoutByCycle(context.Background(), result.FirstCycle.ID)
	require.NoError(t, err)

	svc := paluwagan.NewPayoutService(st)
	_, err = svc.ConfirmReceived(context.Background(), payout.ID, "ana", "")
	assert.ErrorIs(t, err, paluwagan.ErrInvalidState)
}

func TestPayout_Dispute(t *testing.T) {
	// GIVEN: A sent payout
	// WHEN: The recipient disputes it with a reason
	// THEN: The payout moves to disputed; a confirmed payout cannot be
	//       disputed afterwards

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	ctx := context.Background()
	payout, err := st.GetPayoutByCycle(ctx, result.FirstCycle.ID)
	require.NoError(t, err)

	svc := paluwagan.NewPayoutService(st)
	_, err = svc.MarkSent(ctx, payout.ID, "ana", "")
	require.NoError(t, err)

	disputed, err := svc.Dispute(ctx, payout.ID, "ana", "recipient says nothing arrived")
	require.NoError(t, err)
	assert.Equal(t, paluwagan.PayoutDisputed, disputed.Status)
	assert.Equal(t, "recipient says nothing arrived", disputed.DisputeReason)

	_, err = svc.Dispute(ctx, payout.ID, "ana", "again")
	assert.ErrorIs(t, err, paluwagan.ErrInvalidState)
}

func TestPayout_DisputeKeepsSentNote(t *testing.T) {
	// GIVEN: A payout the organizer marked sent with a reference note
	// WHEN: The recipient disputes it
	// THEN: The dispute reason lands in its own field and the sent note
	//       survives untouched

	st := store.NewMemory()
	_, result := startedTrio(t, st)
	ctx := context.Background()
	payout, err := st.GetPayoutByCycle(ctx, result.FirstCycle.ID)
	require.NoError(t, err)

	svc := paluwagan.NewPayoutService(st)
	_, err = svc.MarkSent(ctx, payout.ID, "ana", "sent via bank transfer")
	require.NoError(t, err)

	disputed, err := svc.Dispute(ctx, payout.ID, "ana", "nothing arrived")
	require.NoError(t, err)
	assert.Equal(t, "sent via bank transfer", disputed.Note)
	assert.Equal(t, "nothing arrived", disputed.DisputeReason)
}

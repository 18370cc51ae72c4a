package paluwagan_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraya/paluwagan-engine/paluwagan"
	"github.com/hiraya/paluwagan-engine/paluwagan/store"
)

func TestSummarize(t *testing.T) {
	// GIVEN: A started trio where ben paid late and was confirmed, carla
	//        disputed, and ana has not paid
	// WHEN: Building the group summary
	// THEN: The totals split 1,500 expected into 500 collected, 500
	//       outstanding, and 500 disputed, with ben's late payment counted

	st := store.NewMemory()
	group, result := startedTrio(t, st)
	ctx := context.Background()

	contributions := paluwagan.NewContributionService(st)
	contributions.Now = juneClock(10) // past the June 9 due date

	ben := contributionOf(t, st, result.FirstCycle.ID, "ben")
	_, err := contributions.Submit(ctx, ben.ID, "ben", "ref", "")
	require.NoError(t, err)
	_, err = contributions.Confirm(ctx, ben.ID, "ana")
	require.NoError(t, err)

	carla := contributionOf(t, st, result.FirstCycle.ID, "carla")
	_, err = contributions.Dispute(ctx, carla.ID, "ana", "no payment received")
	require.NoError(t, err)

	summary, err := paluwagan.NewSummaryService(st).Summarize(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, paluwagan.GroupActive, summary.Status)
	assert.Equal(t, 3, summary.CyclesTotal)
	assert.Equal(t, 0, summary.CyclesClosed)
	require.NotNil(t, summary.OpenCycle)
	assert.Equal(t, 1, *summary.OpenCycle)

	assert.True(t, decimal.NewFromInt(1500).Equal(summary.Expected), "expected %s", summary.Expected)
	assert.True(t, decimal.NewFromInt(500).Equal(summary.Collected), "collected %s", summary.Collected)
	assert.True(t, decimal.NewFromInt(500).Equal(summary.Outstanding), "outstanding %s", summary.Outstanding)
	assert.True(t, decimal.NewFromInt(500).Equal(summary.Disputed), "disputed %s", summary.Disputed)
	assert.Equal(t, 1, summary.LateCount)

	require.Len(t, summary.Members, 3)
	byUser := make(map[paluwagan.UserID]paluwagan.MemberStanding)
	for _, m := range summary.Members {
		byUser[m.UserID] = m
	}
	assert.True(t, decimal.NewFromInt(500).Equal(byUser["ben"].Paid))
	assert.True(t, decimal.Zero.Equal(byUser["ben"].Due))
	assert.Equal(t, 1, byUser["ben"].LateCount)
	assert.True(t, decimal.NewFromInt(500).Equal(byUser["ana"].Due))
	assert.True(t, decimal.Zero.Equal(byUser["carla"].Due), "disputed is not outstanding")
}

func TestSummarize_TracksClosedCycles(t *testing.T) {
	// GIVEN: A trio advanced past cycle 1
	// WHEN: Summarizing
	// THEN: The closed count and open cycle number move forward and the
	//       expected total includes cycle 2's fresh contributions

	st := store.NewMemory()
	group, _ := startedTrio(t, st)
	ctx := context.Background()

	_, err := paluwagan.NewLifecycleService(st).AdvanceCycle(ctx, group.ID, "ana")
	require.NoError(t, err)

	summary, err := paluwagan.NewSummaryService(st).Summarize(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CyclesClosed)
	require.NotNil(t, summary.OpenCycle)
	assert.Equal(t, 2, *summary.OpenCycle)
	assert.True(t, decimal.NewFromInt(3000).Equal(summary.Expected), "expected %s", summary.Expected)
}

package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraya/paluwagan-engine/api"
	"github.com/hiraya/paluwagan-engine/paluwagan"
	"github.com/hiraya/paluwagan-engine/paluwagan/store"
)

// activeGroup spins up a started 3-member branch directly against the
// store. Cycle 1 runs 2024-06-03 through 2024-06-09 with a 2-day grace.
func activeGroup(t *testing.T, st *store.Memory, h *api.Handler) *paluwagan.Group {
	t.Helper()
	ctx := context.Background()

	group, err := h.Memberships.CreateGroup(ctx, paluwagan.NewGroupParams{
		OrganizerID: "ana",
		Name:        "Sweep Target",
		Amount:      decimal.NewFromInt(500),
		Frequency:   paluwagan.FreqWeekly,
		StartDate:   paluwagan.NewDate(2024, time.June, 3),
		Capacity:    3,
		OrderMethod: paluwagan.OrderFixed,
		Rules:       paluwagan.GroupRules{AutoApproveMembers: true, GracePeriodDays: 2},
	})
	require.NoError(t, err)
	for _, u := range []paluwagan.UserID{"ben", "carla"} {
		_, _, err := h.Memberships.RequestJoin(ctx, group.ID, u)
		require.NoError(t, err)
	}
	_, err = h.Lifecycle.Start(ctx, group.ID, "ana")
	require.NoError(t, err)
	return group
}

func TestScheduler_AdvancesOverdueCycle(t *testing.T) {
	// GIVEN: An active branch whose cycle 1 due date plus grace passed on
	//        June 11
	// WHEN: Sweeping on June 12
	// THEN: Cycle 1 is closed and cycle 2 opened on the organizer's behalf

	st := store.NewMemory()
	h := api.NewHandler(st)
	group := activeGroup(t, st, h)

	scheduler := api.NewAdvanceScheduler(st, h)
	scheduler.Now = func() time.Time {
		return time.Date(2024, time.June, 12, 3, 0, 0, 0, time.UTC)
	}
	scheduler.Sweep()

	open, err := st.OpenCycle(context.Background(), group.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 2, open.Number)
}

func TestScheduler_RespectsGracePeriod(t *testing.T) {
	// GIVEN: The same branch, due June 9 with 2 days of grace
	// WHEN: Sweeping on June 11, the last day of grace
	// THEN: Nothing moves

	st := store.NewMemory()
	h := api.NewHandler(st)
	group := activeGroup(t, st, h)

	scheduler := api.NewAdvanceScheduler(st, h)
	scheduler.Now = func() time.Time {
		return time.Date(2024, time.June, 11, 23, 0, 0, 0, time.UTC)
	}
	scheduler.Sweep()

	open, err := st.OpenCycle(context.Background(), group.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 1, open.Number, "still within grace")
}

func TestScheduler_SkipsFormingGroups(t *testing.T) {
	// GIVEN: A forming branch that never started
	// WHEN: Sweeping far in the future
	// THEN: The sweep leaves it alone; only active branches are scanned

	st := store.NewMemory()
	h := api.NewHandler(st)
	ctx := context.Background()

	group, err := h.Memberships.CreateGroup(ctx, paluwagan.NewGroupParams{
		OrganizerID: "ana",
		Name:        "Never Started",
		Amount:      decimal.NewFromInt(500),
		Frequency:   paluwagan.FreqWeekly,
		StartDate:   paluwagan.NewDate(2024, time.June, 3),
		Capacity:    3,
		OrderMethod: paluwagan.OrderFixed,
	})
	require.NoError(t, err)

	scheduler := api.NewAdvanceScheduler(st, h)
	scheduler.Now = func() time.Time {
		return time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	scheduler.Sweep()

	loaded, err := st.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, paluwagan.GroupForming, loaded.Status)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	st := store.NewMemory()
	scheduler := api.NewAdvanceScheduler(st, api.NewHandler(st))
	scheduler.Enabled = false
	scheduler.Start()
	scheduler.Stop() // no goroutine to wait on
}

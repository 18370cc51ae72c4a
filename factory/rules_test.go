package factory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraya/paluwagan-engine/factory"
	"github.com/hiraya/paluwagan-engine/paluwagan"
)

func TestParseGroup(t *testing.T) {
	// GIVEN: A full JSON branch definition
	// WHEN: Parsing it
	// THEN: Every field maps, with the amount parsed as exact decimal

	f := factory.NewGroupFactory()
	params, err := f.ParseGroup(`{
		"organizer_id": "user-ana",
		"name": "Office Friday Club",
		"amount": "500.50",
		"frequency": "weekly",
		"start_date": "2026-01-02",
		"capacity": 8,
		"order_method": "lottery",
		"fee": {"mode": "percent", "percent": "7"},
		"rules": {"grace_period_days": 2, "auto_approve_members": true}
	}`)
	require.NoError(t, err)

	assert.Equal(t, paluwagan.UserID("user-ana"), params.OrganizerID)
	assert.Equal(t, "Office Friday Club", params.Name)
	assert.True(t, decimal.RequireFromString("500.50").Equal(params.Amount))
	assert.Equal(t, paluwagan.FreqWeekly, params.Frequency)
	assert.Equal(t, "2026-01-02", params.StartDate.String())
	assert.Equal(t, 8, params.Capacity)
	assert.Equal(t, paluwagan.OrderLottery, params.OrderMethod)
	assert.Equal(t, paluwagan.FeePercent, params.Fee.Mode)
	assert.True(t, decimal.NewFromInt(7).Equal(params.Fee.Percent))
	assert.Equal(t, 2, params.Rules.GracePeriodDays)
	assert.True(t, params.Rules.AutoApproveMembers)
}

func TestParseGroup_Defaults(t *testing.T) {
	// GIVEN: A minimal definition with no frequency, order, fee, or rules
	// WHEN: Parsing
	// THEN: Monthly, fixed order, and the 5% default fee apply

	f := factory.NewGroupFactory()
	params, err := f.ParseGroup(`{
		"organizer_id": "user-ana",
		"name": "Neighbors",
		"amount": "1000",
		"start_date": "2026-03-01",
		"capacity": 5
	}`)
	require.NoError(t, err)

	assert.Equal(t, paluwagan.FreqMonthly, params.Frequency)
	assert.Equal(t, paluwagan.OrderFixed, params.OrderMethod)
	assert.Equal(t, paluwagan.FeePercent, params.Fee.Mode)
	assert.True(t, paluwagan.DefaultFeePercent.Equal(params.Fee.Percent))
	assert.Equal(t, paluwagan.GroupRules{}, params.Rules)
}

func TestParseGroup_FixedFee(t *testing.T) {
	f := factory.NewGroupFactory()
	params, err := f.ParseGroup(`{
		"organizer_id": "user-ana",
		"name": "Neighbors",
		"amount": "1000",
		"start_date": "2026-03-01",
		"capacity": 5,
		"fee": {"mode": "fixed", "amount": "50"}
	}`)
	require.NoError(t, err)

	assert.Equal(t, paluwagan.FeeFixed, params.Fee.Mode)
	assert.True(t, decimal.NewFromInt(50).Equal(params.Fee.Amount))
}

func TestParseGroup_Errors(t *testing.T) {
	f := factory.NewGroupFactory()

	cases := []struct {
		name string
		json string
	}{
		{"malformed json", `{"name": `},
		{"bad amount", `{"organizer_id": "a", "name": "x", "amount": "five hundred", "start_date": "2026-01-02", "capacity": 5}`},
		{"bad start date", `{"organizer_id": "a", "name": "x", "amount": "500", "start_date": "01/02/2026", "capacity": 5}`},
		{"bad fee percent", `{"organizer_id": "a", "name": "x", "amount": "500", "start_date": "2026-01-02", "capacity": 5, "fee": {"mode": "percent", "percent": "lots"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ParseGroup(tc.json)
			assert.Error(t, err)
		})
	}
}

func TestToJSON(t *testing.T) {
	// GIVEN: A group loaded from the engine
	// WHEN: Converting back to the JSON definition
	// THEN: The definition re-parses into equivalent params

	f := factory.NewGroupFactory()
	group := &paluwagan.Group{
		OrganizerID: "user-ana",
		Name:        "Round Trip",
		Amount:      decimal.NewFromInt(750),
		Frequency:   paluwagan.FreqBiweekly,
		StartDate:   paluwagan.NewDate(2026, time.February, 1),
		Capacity:    6,
		OrderMethod: paluwagan.OrderOrganizerAssigned,
		Fee:         paluwagan.DefaultOrganizerFee(),
		Rules:       paluwagan.GroupRules{AutoApproveMembers: true},
	}

	gj := f.ToJSON(group)
	params, err := f.FromJSON(gj)
	require.NoError(t, err)

	assert.Equal(t, group.OrganizerID, params.OrganizerID)
	assert.True(t, group.Amount.Equal(params.Amount))
	assert.Equal(t, group.Frequency, params.Frequency)
	assert.True(t, group.StartDate.Equal(params.StartDate))
	assert.Equal(t, group.OrderMethod, params.OrderMethod)
	assert.Equal(t, group.Fee.Mode, params.Fee.Mode)
	assert.Equal(t, group.Rules, params.Rules)
}

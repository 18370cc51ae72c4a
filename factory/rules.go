/*
Package factory provides JSON to Go group-definition conversion.

PURPOSE:
  Converts JSON branch definitions into paluwagan.NewGroupParams. This
  enables group templates without code changes - an admin surface can ship
  branch presets in JSON, and the factory creates the proper Go structs
  with defaults and validation applied.

WHY JSON?
  - Non-developers can define branch templates
  - Easy integration with admin UI
  - Version control for template definitions
  - Database storage of group configs

JSON SCHEMA:
  {
    "organizer_id": "user-ana",
    "name": "Office Friday Club",
    "amount": "500",
    "frequency": "weekly",
    "start_date": "2026-01-02",
    "capacity": 8,
    "order_method": "lottery",
    "fee": {"mode": "percent", "percent": "5"},
    "rules": {
      "grace_period_days": 2,
      "auto_approve_members": true
    }
  }

KEY FEATURES:
  - Validates JSON structure and amounts
  - Sets sensible defaults (monthly, fixed order, 5% fee)
  - Amounts parse as strings to avoid float drift

USAGE:
  f := factory.NewGroupFactory()
  params, err := f.ParseGroup(jsonString)
  group, err := membershipService.CreateGroup(ctx, params)

SEE ALSO:
  - paluwagan/types.go: OrganizerFee and GroupRules definitions
  - paluwagan/members.go: CreateGroup, the consumer of NewGroupParams
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hiraya/paluwagan-engine/paluwagan"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// GroupJSON is the JSON representation of a branch definition.
type GroupJSON struct {
	OrganizerID string     `json:"organizer_id"`
	Name        string     `json:"name"`
	Amount      string     `json:"amount"`
	Frequency   string     `json:"frequency,omitempty"`
	StartDate   string     `json:"start_date"`
	Capacity    int        `json:"capacity"`
	OrderMethod string     `json:"order_method,omitempty"`
	Fee         *FeeJSON   `json:"fee,omitempty"`
	Rules       *RulesJSON `json:"rules,omitempty"`
}

// FeeJSON represents the organizer fee configuration.
type FeeJSON struct {
	Mode    string `json:"mode"` // percent, fixed
	Percent string `json:"percent,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// RulesJSON represents optional group rules.
type RulesJSON struct {
	GracePeriodDays    int  `json:"grace_period_days,omitempty"`
	AutoApproveMembers bool `json:"auto_approve_members,omitempty"`
	AllowMemberInvites bool `json:"allow_member_invites,omitempty"`
}

// =============================================================================
// GROUP FACTORY
// =============================================================================

// GroupFactory converts JSON branch definitions to Go structs.
type GroupFactory struct{}

// NewGroupFactory creates a new group factory.
func NewGroupFactory() *GroupFactory {
	return &GroupFactory{}
}

// ParseGroup parses a JSON string into NewGroupParams.
func (f *GroupFactory) ParseGroup(jsonStr string) (paluwagan.NewGroupParams, error) {
	var gj GroupJSON
	if err := json.Unmarshal([]byte(jsonStr), &gj); err != nil {
		return paluwagan.NewGroupParams{}, fmt.Errorf("failed to parse group JSON: %w", err)
	}
	return f.FromJSON(gj)
}

// FromJSON converts GroupJSON to NewGroupParams, applying defaults. Deep
// domain validation (capacity floor, fee bounds) stays with CreateGroup;
// the factory only rejects input it cannot represent.
func (f *GroupFactory) FromJSON(gj GroupJSON) (paluwagan.NewGroupParams, error) {
	var p paluwagan.NewGroupParams

	amount, err := decimal.NewFromString(gj.Amount)
	if err != nil {
		return p, fmt.Errorf("invalid amount %q: %w", gj.Amount, err)
	}

	start, err := paluwagan.ParseDate(gj.StartDate)
	if err != nil {
		return p, fmt.Errorf("invalid start_date %q: %w", gj.StartDate, err)
	}

	fee, err := parseFee(gj.Fee)
	if err != nil {
		return p, err
	}

	p = paluwagan.NewGroupParams{
		OrganizerID: paluwagan.UserID(gj.OrganizerID),
		Name:        gj.Name,
		Amount:      amount,
		Frequency:   parseFrequency(gj.Frequency),
		StartDate:   start,
		Capacity:    gj.Capacity,
		OrderMethod: parseOrderMethod(gj.OrderMethod),
		Fee:         fee,
	}
	if gj.Rules != nil {
		p.Rules = paluwagan.GroupRules{
			GracePeriodDays:    gj.Rules.GracePeriodDays,
			AutoApproveMembers: gj.Rules.AutoApproveMembers,
			AllowMemberInvites: gj.Rules.AllowMemberInvites,
		}
	}
	return p, nil
}

// ToJSON converts a Group back to its JSON definition.
func (f *GroupFactory) ToJSON(g *paluwagan.Group) GroupJSON {
	gj := GroupJSON{
		OrganizerID: string(g.OrganizerID),
		Name:        g.Name,
		Amount:      g.Amount.String(),
		Frequency:   string(g.Frequency),
		StartDate:   g.StartDate.String(),
		Capacity:    g.Capacity,
		OrderMethod: string(g.OrderMethod),
		Fee: &FeeJSON{
			Mode:    string(g.Fee.Mode),
			Percent: g.Fee.Percent.String(),
			Amount:  g.Fee.Amount.String(),
		},
	}
	if g.Rules != (paluwagan.GroupRules{}) {
		gj.Rules = &RulesJSON{
			GracePeriodDays:    g.Rules.GracePeriodDays,
			AutoApproveMembers: g.Rules.AutoApproveMembers,
			AllowMemberInvites: g.Rules.AllowMemberInvites,
		}
	}
	return gj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseFrequency(s string) paluwagan.Frequency {
	switch s {
	case "weekly":
		return paluwagan.FreqWeekly
	case "biweekly":
		return paluwagan.FreqBiweekly
	case "":
		return paluwagan.FreqMonthly
	default:
		return paluwagan.Frequency(s)
	}
}

func parseOrderMethod(s string) paluwagan.OrderMethod {
	switch s {
	case "lottery":
		return paluwagan.OrderLottery
	case "organizer_assigned":
		return paluwagan.OrderOrganizerAssigned
	case "":
		return paluwagan.OrderFixed
	default:
		return paluwagan.OrderMethod(s)
	}
}

func parseFee(fj *FeeJSON) (paluwagan.OrganizerFee, error) {
	if fj == nil {
		return paluwagan.DefaultOrganizerFee(), nil
	}
	fee := paluwagan.OrganizerFee{Mode: paluwagan.FeeMode(fj.Mode)}
	if fj.Percent != "" {
		pct, err := decimal.NewFromString(fj.Percent)
		if err != nil {
			return fee, fmt.Errorf("invalid fee percent %q: %w", fj.Percent, err)
		}
		fee.Percent = pct
	}
	if fj.Amount != "" {
		amt, err := decimal.NewFromString(fj.Amount)
		if err != nil {
			return fee, fmt.Errorf("invalid fee amount %q: %w", fj.Amount, err)
		}
		fee.Amount = amt
	}
	if fee.Mode == "" {
		fee.Mode = paluwagan.FeePercent
	}
	if fee.Mode == paluwagan.FeePercent && fee.Percent.IsZero() {
		fee.Percent = paluwagan.DefaultFeePercent
	}
	return fee, nil
}

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiraya/paluwagan-engine/api"
	"github.com/hiraya/paluwagan-engine/paluwagan/store"
)

// =============================================================================
// TEST SERVER
// =============================================================================

// newTestServer wires the full router over the in-memory store with every
// service clock frozen at 2024-06-05, two days into cycle 1 of the fixture
// group (weekly from 2024-06-03, due 2024-06-09).
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemory()
	h := api.NewHandler(st)
	clock := func() time.Time {
		return time.Date(2024, time.June, 5, 12, 0, 0, 0, time.UTC)
	}
	h.Memberships.Now = clock
	h.Lifecycle.Now = clock
	h.Contributions.Now = clock
	h.Payouts.Now = clock

	ts := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(ts.Close)
	return ts
}

// call issues a request with the given actor and decodes the JSON response
// into out (when out is non-nil).
func call(t *testing.T, ts *httptest.Server, method, path, actor string, body, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, buf)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func groupBody(name string, amount string, capacity int) map[string]any {
	return map[string]any{
		"name":       name,
		"amount":     amount,
		"frequency":  "weekly",
		"start_date": "2024-06-03",
		"capacity":   capacity,
		"rules":      map[string]any{"auto_approve_members": true},
	}
}

// createStartedGroup creates a 3-slot group as ana, joins ben and carla,
// and starts it.
func createStartedGroup(t *testing.T, ts *httptest.Server) (api.GroupDTO, api.StartResultDTO) {
	t.Helper()

	var group api.GroupDTO
	code := call(t, ts, http.MethodPost, "/api/groups", "ana", groupBody("Barkada", "500", 3), &group)
	require.Equal(t, http.StatusCreated, code)

	for _, u := range []string{"ben", "carla"} {
		code = call(t, ts, http.MethodPost, "/api/groups/"+group.ID+"/join", u, nil, nil)
		require.Equal(t, http.StatusCreated, code)
	}

	var started api.StartResultDTO
	code = call(t, ts, http.MethodPost, "/api/groups/"+group.ID+"/start", "ana", nil, &started)
	require.Equal(t, http.StatusOK, code)
	return group, started
}

// =============================================================================
// GROUP ENDPOINTS
// =============================================================================

func TestAPI_GroupLifecycle(t *testing.T) {
	// GIVEN: A fresh server
	// WHEN: Creating, joining, starting, and advancing a branch over HTTP
	// THEN: Each step returns its DTO with the domain results intact

	ts := newTestServer(t)
	group, started := createStartedGroup(t, ts)

	assert.Equal(t, "ana", group.OrganizerID, "actor header becomes the organizer")
	assert.Equal(t, "forming", group.Status)
	assert.Equal(t, "percent", group.FeeMode)
	assert.Equal(t, "5", group.FeePercent)

	assert.Equal(t, "active", started.Group.Status)
	require.Len(t, started.Assignments, 3)
	assert.Equal(t, "ana", started.Assignments[0].UserID)
	assert.Equal(t, 1, started.FirstCycle.Number)
	assert.Equal(t, "open", started.FirstCycle.Status)

	var cycles []api.CycleDTO
	code := call(t, ts, http.MethodGet, "/api/groups/"+group.ID+"/cycles", "ana", nil, &cycles)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, cycles, 3)
	assert.Equal(t, "2024-06-09", cycles[0].Due)

	var advanced api.AdvanceResultDTO
	code = call(t, ts, http.MethodPost, "/api/groups/"+group.ID+"/advance", "ana", nil, &advanced)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, advanced.ClosedCycle.Number)
	require.NotNil(t, advanced.OpenedCycle)
	assert.Equal(t, 2, advanced.OpenedCycle.Number)
	assert.False(t, advanced.Completed)

	var summary api.SummaryDTO
	code = call(t, ts, http.MethodGet, "/api/groups/"+group.ID+"/summary", "ana", nil, &summary)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, summary.CyclesClosed)
	assert.Equal(t, "3000", summary.Expected)
}

func TestAPI_CreateGroup_RequiresActor(t *testing.T) {
	ts := newTestServer(t)
	code := call(t, ts, http.MethodPost, "/api/groups", "", groupBody("Nope", "500", 3), nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_ErrorMapping(t *testing.T) {
	// GIVEN: A started group
	// WHEN: Hitting endpoints with the wrong actor, entity, or state
	// THEN: Domain errors surface as the documented status codes

	ts := newTestServer(t)
	group, _ := createStartedGroup(t, ts)

	// Unknown entity.
	code := call(t, ts, http.MethodGet, "/api/groups/nope", "ana", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// Non-organizer advancing.
	code = call(t, ts, http.MethodPost, "/api/groups/"+group.ID+"/advance", "ben", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	// Joining an active group.
	code = call(t, ts, http.MethodPost, "/api/groups/"+group.ID+"/join", "dina", nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	// Cancelling a branch that already started.
	code = call(t, ts, http.MethodPost, "/api/groups/"+group.ID+"/cancel", "ana", nil, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAPI_JoinLimits(t *testing.T) {
	// GIVEN: Ben already active in three branches
	// WHEN: He joins a fourth over HTTP
	// THEN: 422 with the limit decision in the body

	ts := newTestServer(t)

	var lastGroup api.GroupDTO
	for i := 0; i < 4; i++ {
		code := call(t, ts, http.MethodPost, "/api/groups", "ana",
			groupBody(fmt.Sprintf("Branch %d", i), "100", 5), &lastGroup)
		require.Equal(t, http.StatusCreated, code)
		if i < 3 {
			code = call(t, ts, http.MethodPost, "/api/groups/"+lastGroup.ID+"/join", "ben", nil, nil)
			require.Equal(t, http.StatusCreated, code)
		}
	}

	var body struct {
		Error  string               `json:"error"`
		Limits api.LimitDecisionDTO `json:"limits"`
	}
	code := call(t, ts, http.MethodPost, "/api/groups/"+lastGroup.ID+"/join", "ben", nil, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, body.Limits.CanJoin)
	assert.Equal(t, "branch_limit", body.Limits.ReasonCode)
	assert.Equal(t, 3, body.Limits.CurrentBranches)
}

// =============================================================================
// CONTRIBUTION AND PAYOUT ENDPOINTS
// =============================================================================

func TestAPI_ContributionFlow(t *testing.T) {
	// GIVEN: A started group and cycle 1's contribution rows
	// WHEN: Ben submits proof and ana confirms, both over HTTP
	// THEN: Statuses move through pending_proof to paid_confirmed

	ts := newTestServer(t)
	_, started := createStartedGroup(t, ts)

	var contributions []api.ContributionDTO
	code := call(t, ts, http.MethodGet, "/api/cycles/"+started.FirstCycle.ID+"/contributions", "ana", nil, &contributions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, contributions, 3)

	var bens api.ContributionDTO
	for _, c := range contributions {
		if c.UserID == "ben" {
			bens = c
		}
	}
	require.NotEmpty(t, bens.ID)
	assert.Equal(t, "unpaid", bens.Status)

	var submitted api.ContributionDTO
	code = call(t, ts, http.MethodPost, "/api/contributions/"+bens.ID+"/submit", "ben",
		api.SubmitContributionRequest{ProofRef: "gcash-123"}, &submitted)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending_proof", submitted.Status)
	assert.False(t, submitted.IsLate)

	// Owner-only: carla cannot confirm.
	code = call(t, ts, http.MethodPost, "/api/contributions/"+bens.ID+"/confirm", "carla", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var confirmed api.ContributionDTO
	code = call(t, ts, http.MethodPost, "/api/contributions/"+bens.ID+"/confirm", "ana", nil, &confirmed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid_confirmed", confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "ana", *confirmed.ConfirmedBy)
}

func TestAPI_PayoutFlow(t *testing.T) {
	// GIVEN: Cycle 1's scheduled payout to ana
	// WHEN: Ana marks it sent and confirms receipt (she holds position 1)
	// THEN: The payout walks scheduled -> sent -> confirmed with the fee
	//       split visible in every response

	ts := newTestServer(t)
	_, started := createStartedGroup(t, ts)

	var payout api.PayoutDTO
	code := call(t, ts, http.MethodGet, "/api/cycles/"+started.FirstCycle.ID+"/payout", "ana", nil, &payout)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ana", payout.RecipientID)
	assert.Equal(t, "1500", payout.Gross)
	assert.Equal(t, "75", payout.Fee)
	assert.Equal(t, "1425", payout.Net)
	assert.Equal(t, "scheduled", payout.Status)

	var sent api.PayoutDTO
	code = call(t, ts, http.MethodPost, "/api/payouts/"+payout.ID+"/sent", "ana",
		api.PayoutNoteRequest{Note: "bank transfer"}, &sent)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sent_by_organizer", sent.Status)
	require.NotNil(t, sent.SentAt)

	var confirmed api.PayoutDTO
	code = call(t, ts, http.MethodPost, "/api/payouts/"+payout.ID+"/confirm", "ana", nil, &confirmed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "confirmed_by_recipient", confirmed.Status)
}

// =============================================================================
// ME ENDPOINTS
// =============================================================================

func TestAPI_Me(t *testing.T) {
	// GIVEN: Ben active in one branch
	// WHEN: He reads his memberships, previews a limit check, and lists his
	//       notifications
	// THEN: Each read is scoped to his actor header

	ts := newTestServer(t)
	group, _ := createStartedGroup(t, ts)

	var memberships []api.MembershipDTO
	code := call(t, ts, http.MethodGet, "/api/me/memberships", "ben", nil, &memberships)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, memberships, 1)
	assert.Equal(t, group.ID, memberships[0].GroupID)
	assert.Equal(t, "500", memberships[0].Amount)

	var decision api.LimitDecisionDTO
	code = call(t, ts, http.MethodGet, "/api/me/limits?amount=200&frequency=monthly", "ben", nil, &decision)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decision.CanJoin)
	assert.Equal(t, 1, decision.CurrentBranches)
	assert.Equal(t, "2200", decision.ProjectedMonthlyTotal)

	code = call(t, ts, http.MethodGet, "/api/me/limits?amount=bad&frequency=monthly", "ben", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = call(t, ts, http.MethodGet, "/api/me/memberships", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	var notifications []api.NotificationDTO
	code = call(t, ts, http.MethodGet, "/api/me/notifications?unread=true", "ben", nil, &notifications)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, notifications, "ben was told the group started")

	code = call(t, ts, http.MethodPost, "/api/notifications/"+notifications[0].ID+"/read", "ben", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var remaining []api.NotificationDTO
	code = call(t, ts, http.MethodGet, "/api/me/notifications?unread=true", "ben", nil, &remaining)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, remaining, len(notifications)-1)
}

func TestAPI_Healthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

/*
handlers.go - HTTP API handlers for the paluwagan engine

PURPOSE:
  Exposes the paluwagan engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain services.

ENDPOINTS:
  Groups:
    GET    /api/groups                  List all branches
    POST   /api/groups                  Create a branch (actor = organizer)
    GET    /api/groups/{id}             Get branch details
    POST   /api/groups/{id}/start       Activate: assign order, open cycle 1
    POST   /api/groups/{id}/advance     Close open cycle, open next or complete
    POST   /api/groups/{id}/cancel      Cancel a forming branch
    GET    /api/groups/{id}/summary     Financial summary
    GET    /api/groups/{id}/cycles      Full rotation schedule
    GET    /api/groups/{id}/members     Membership roster
    GET    /api/groups/{id}/audit       Activity feed, newest first
    POST   /api/groups/{id}/join        Request to join (actor = joiner)

  Members:
    POST   /api/members/{id}/approve    pending -> active
    POST   /api/members/{id}/freeze     active -> frozen
    POST   /api/members/{id}/unfreeze   frozen -> active
    POST   /api/members/{id}/remove     -> removed

  Contributions:
    GET    /api/cycles/{id}/contributions
    POST   /api/contributions/{id}/submit    unpaid -> pending_proof
    POST   /api/contributions/{id}/confirm   pending_proof -> paid_confirmed
    POST   /api/contributions/{id}/dispute   -> disputed

  Payouts:
    GET    /api/cycles/{id}/payout
    POST   /api/payouts/{id}/sent       scheduled -> sent_by_organizer
    POST   /api/payouts/{id}/confirm    sent -> confirmed_by_recipient
    POST   /api/payouts/{id}/dispute    -> disputed

  Me:
    GET    /api/me/memberships          The actor's cross-group exposure
    GET    /api/me/limits?amount=&frequency=  Preview a limit check
    GET    /api/me/notifications
    POST   /api/notifications/{id}/read

AUTHENTICATION:
  The caller's identity arrives in the X-Actor-ID header, set by the
  surrounding platform's auth proxy. Requests without it get 401.
  Authorization (organizer-only, owner-only) lives in the domain services.

ERROR HANDLING:
  Domain errors map to HTTP status via errorStatus:
  - 400: Validation errors, invalid input
  - 401: Missing actor
  - 403: Actor lacks the required role
  - 404: Entity not found
  - 409: State conflict (lost race, wrong current state)
  - 422: Membership limit exceeded
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hiraya/paluwagan-engine/factory"
	"github.com/hiraya/paluwagan-engine/paluwagan"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store paluwagan.TxStore

	Memberships   *paluwagan.MembershipService
	Lifecycle     *paluwagan.LifecycleService
	Contributions *paluwagan.ContributionService
	Payouts       *paluwagan.PayoutService
	Summaries     *paluwagan.SummaryService

	GroupFactory *factory.GroupFactory
}

// NewHandler creates a handler backed by the given store.
func NewHandler(store paluwagan.TxStore) *Handler {
	return &Handler{
		Store:         store,
		Memberships:   paluwagan.NewMembershipService(store),
		Lifecycle:     paluwagan.NewLifecycleService(store),
		Contributions: paluwagan.NewContributionService(store),
		Payouts:       paluwagan.NewPayoutService(store),
		Summaries:     paluwagan.NewSummaryService(store),
		GroupFactory:  factory.NewGroupFactory(),
	}
}

// actorID extracts the caller identity from the X-Actor-ID header.
func actorID(r *http.Request) paluwagan.UserID {
	return paluwagan.UserID(r.Header.Get("X-Actor-ID"))
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all branches.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i := range groups {
		dtos[i] = toGroupDTO(&groups[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroup returns a single branch.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.Store.GetGroup(r.Context(), paluwagan.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(group))
}

// CreateGroup creates a new branch with the actor as organizer.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Actor-ID header", nil)
		return
	}

	var gj factory.GroupJSON
	if err := json.NewDecoder(r.Body).Decode(&gj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	gj.OrganizerID = string(actor)

	params, err := h.GroupFactory.FromJSON(gj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group definition", err)
		return
	}

	group, err := h.Memberships.CreateGroup(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(group))
}

// StartGroup activates a forming branch: locks the roster, assigns the
// payout order, generates the schedule, and opens cycle 1.
func (h *Handler) StartGroup(w http.ResponseWriter, r *http.Request) {
	result, err := h.Lifecycle.Start(r.Context(),
		paluwagan.GroupID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	groupsStarted.Inc()

	dto := StartResultDTO{
		Group:      toGroupDTO(result.Group),
		FirstCycle: toCycleDTO(result.FirstCycle),
	}
	for _, a := range result.Assignments {
		dto.Assignments = append(dto.Assignments, PositionDTO{
			UserID:   string(a.UserID),
			Position: a.Position,
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// AdvanceGroup closes the open cycle and opens the next, or completes the
// branch when the rotation is exhausted.
func (h *Handler) AdvanceGroup(w http.ResponseWriter, r *http.Request) {
	result, err := h.Lifecycle.AdvanceCycle(r.Context(),
		paluwagan.GroupID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cyclesAdvanced.Inc()

	dto := AdvanceResultDTO{
		ClosedCycle: toCycleDTO(result.ClosedCycle),
		Completed:   result.Completed,
	}
	if result.OpenedCycle != nil {
		opened := toCycleDTO(result.OpenedCycle)
		dto.OpenedCycle = &opened
	}
	writeJSON(w, http.StatusOK, dto)
}

// CancelGroup cancels a forming branch.
func (h *Handler) CancelGroup(w http.ResponseWriter, r *http.Request) {
	err := h.Memberships.CancelGroup(r.Context(),
		paluwagan.GroupID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled"})
}

// GetSummary returns the branch's financial summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Summaries.Summarize(r.Context(), paluwagan.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// ListCycles returns the branch's full rotation schedule.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.Store.ListCycles(r.Context(), paluwagan.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CycleDTO, len(cycles))
	for i := range cycles {
		dtos[i] = toCycleDTO(&cycles[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListGroupMembers returns the branch roster.
func (h *Handler) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context(), paluwagan.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i := range members {
		dtos[i] = toMemberDTO(&members[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAudit returns the branch activity feed, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListAudit(r.Context(), paluwagan.GroupID(chi.URLParam(r, "id")), 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:         e.ID,
			GroupID:    string(e.GroupID),
			ActorID:    string(e.ActorID),
			EntityType: string(e.EntityType),
			EntityID:   e.EntityID,
			Action:     e.Action,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt.Format(timeFormat),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MEMBERSHIP HANDLERS
// =============================================================================

// JoinGroup requests membership in a forming branch for the actor.
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	member, decision, err := h.Memberships.RequestJoin(r.Context(),
		paluwagan.GroupID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		// A limit rejection carries the full decision so the client can
		// show the user which ceiling they hit.
		var limitErr *paluwagan.LimitError
		if errors.As(err, &limitErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "Membership limits exceeded",
				"limits": toLimitDecisionDTO(&limitErr.Decision),
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, JoinResultDTO{
		Member: toMemberDTO(member),
		Limits: toLimitDecisionDTO(decision),
	})
}

// ApproveMember admits a pending member.
func (h *Handler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r, h.Memberships.Approve)
}

// FreezeMember suspends an active member.
func (h *Handler) FreezeMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r, h.Memberships.Freeze)
}

// UnfreezeMember reinstates a frozen member.
func (h *Handler) UnfreezeMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r, h.Memberships.Unfreeze)
}

// RemoveMember removes a member from the branch.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r, h.Memberships.Remove)
}

func (h *Handler) memberTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id paluwagan.MemberID, actor paluwagan.UserID) (*paluwagan.Member, error),
) {
	member, err := fn(r.Context(), paluwagan.MemberID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// =============================================================================
// CONTRIBUTION HANDLERS
// =============================================================================

// ListCycleContributions returns all contribution rows for a cycle.
func (h *Handler) ListCycleContributions(w http.ResponseWriter, r *http.Request) {
	contributions, err := h.Store.ListContributionsByCycle(r.Context(),
		paluwagan.CycleID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ContributionDTO, len(contributions))
	for i := range contributions {
		dtos[i] = toContributionDTO(&contributions[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitContribution records payment proof: unpaid -> pending_proof.
func (h *Handler) SubmitContribution(w http.ResponseWriter, r *http.Request) {
	var req SubmitContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	contribution, err := h.Contributions.Submit(r.Context(),
		paluwagan.ContributionID(chi.URLParam(r, "id")), actorID(r), req.ProofRef, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContributionDTO(contribution))
}

// ConfirmContribution verifies a submitted payment: pending_proof ->
// paid_confirmed. Organizer only.
func (h *Handler) ConfirmContribution(w http.ResponseWriter, r *http.Request) {
	contribution, err := h.Contributions.Confirm(r.Context(),
		paluwagan.ContributionID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContributionDTO(contribution))
}

// DisputeContribution flags a contribution for offline resolution.
func (h *Handler) DisputeContribution(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	contribution, err := h.Contributions.Dispute(r.Context(),
		paluwagan.ContributionID(chi.URLParam(r, "id")), actorID(r), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContributionDTO(contribution))
}

// =============================================================================
// PAYOUT HANDLERS
// =============================================================================

// GetCyclePayout returns the payout scheduled for a cycle.
func (h *Handler) GetCyclePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.Store.GetPayoutByCycle(r.Context(), paluwagan.CycleID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(payout))
}

// MarkPayoutSent records disbursement: scheduled -> sent_by_organizer.
func (h *Handler) MarkPayoutSent(w http.ResponseWriter, r *http.Request) {
	var req PayoutNoteRequest
	decodeOptionalBody(r, &req)

	payout, err := h.Payouts.MarkSent(r.Context(),
		paluwagan.PayoutID(chi.URLParam(r, "id")), actorID(r), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(payout))
}

// ConfirmPayout acknowledges receipt: sent -> confirmed_by_recipient.
func (h *Handler) ConfirmPayout(w http.ResponseWriter, r *http.Request) {
	var req PayoutNoteRequest
	decodeOptionalBody(r, &req)

	payout, err := h.Payouts.ConfirmReceived(r.Context(),
		paluwagan.PayoutID(chi.URLParam(r, "id")), actorID(r), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(payout))
}

// DisputePayout flags a payout for offline resolution.
func (h *Handler) DisputePayout(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payout, err := h.Payouts.Dispute(r.Context(),
		paluwagan.PayoutID(chi.URLParam(r, "id")), actorID(r), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(payout))
}

// =============================================================================
// ME HANDLERS - actor-scoped reads
// =============================================================================

// ListMyMemberships returns the actor's memberships across all branches.
func (h *Handler) ListMyMemberships(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Actor-ID header", nil)
		return
	}

	memberships, err := h.Store.ListUserMemberships(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]MembershipDTO, len(memberships))
	for i, m := range memberships {
		dtos[i] = MembershipDTO{
			GroupID:   string(m.GroupID),
			GroupName: m.GroupName,
			Status:    string(m.Status),
			Amount:    m.Amount.String(),
			Frequency: string(m.Frequency),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CheckMyLimits previews whether the actor could join a branch with the
// given terms, without creating anything.
func (h *Handler) CheckMyLimits(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Actor-ID header", nil)
		return
	}

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount parameter", err)
		return
	}
	freq := paluwagan.Frequency(r.URL.Query().Get("frequency"))
	if !freq.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid frequency parameter", nil)
		return
	}

	decision, err := h.Memberships.CheckLimits(r.Context(), actor, amount, freq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLimitDecisionDTO(decision))
}

// ListMyNotifications returns the actor's notifications, newest first.
// Pass ?unread=true to filter to unread only.
func (h *Handler) ListMyNotifications(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-Actor-ID header", nil)
		return
	}

	notifications, err := h.Store.ListNotifications(r.Context(), actor,
		r.URL.Query().Get("unread") == "true")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dto := NotificationDTO{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Data:      n.Data,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(timeFormat),
		}
		if n.GroupID != nil {
			g := string(*n.GroupID)
			dto.GroupID = &g
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead flips a notification's read flag.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := h.Store.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

const timeFormat = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error(), nil)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, paluwagan.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, paluwagan.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, paluwagan.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, paluwagan.ErrStateConflict), errors.Is(err, paluwagan.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, paluwagan.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	default:
		var validation *paluwagan.ValidationError
		if errors.As(err, &validation) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

// decodeOptionalBody decodes a JSON body when present; an empty body is
// not an error.
func decodeOptionalBody(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. countRequests: Prometheus request counter
  5. CORS:          Cross-origin requests for frontend

ROUTE GROUPS:
  /api/groups/*         Branch lifecycle, roster, schedule, summary
  /api/members/*        Membership transitions
  /api/cycles/*         Per-cycle contribution and payout reads
  /api/contributions/*  Contribution state machine
  /api/payouts/*        Payout state machine
  /api/me/*             Actor-scoped reads
  /healthz              Liveness probe
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  Identity arrives pre-verified in the X-Actor-ID header; this service
  trusts its auth proxy. Do not expose it directly to the internet.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(countRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Branch routes
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
			r.Post("/{id}/start", h.StartGroup)
			r.Post("/{id}/advance", h.AdvanceGroup)
			r.Post("/{id}/cancel", h.CancelGroup)
			r.Get("/{id}/summary", h.GetSummary)
			r.Get("/{id}/cycles", h.ListCycles)
			r.Get("/{id}/members", h.ListGroupMembers)
			r.Get("/{id}/audit", h.ListAudit)
			r.Post("/{id}/join", h.JoinGroup)
		})

		// Membership transition routes
		r.Route("/members", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApproveMember)
			r.Post("/{id}/freeze", h.FreezeMember)
			r.Post("/{id}/unfreeze", h.UnfreezeMember)
			r.Post("/{id}/remove", h.RemoveMember)
		})

		// Per-cycle reads
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/{id}/contributions", h.ListCycleContributions)
			r.Get("/{id}/payout", h.GetCyclePayout)
		})

		// Contribution state machine
		r.Route("/contributions", func(r chi.Router) {
			r.Post("/{id}/submit", h.SubmitContribution)
			r.Post("/{id}/confirm", h.ConfirmContribution)
			r.Post("/{id}/dispute", h.DisputeContribution)
		})

		// Payout state machine
		r.Route("/payouts", func(r chi.Router) {
			r.Post("/{id}/sent", h.MarkPayoutSent)
			r.Post("/{id}/confirm", h.ConfirmPayout)
			r.Post("/{id}/dispute", h.DisputePayout)
		})

		// Actor-scoped routes
		r.Route("/me", func(r chi.Router) {
			r.Get("/memberships", h.ListMyMemberships)
			r.Get("/limits", h.CheckMyLimits)
			r.Get("/notifications", h.ListMyNotifications)
		})

		r.Post("/notifications/{id}/read", h.MarkNotificationRead)
	})

	// Operational endpoints
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

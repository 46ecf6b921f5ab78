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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. Metrics:    Prometheus request counters
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/products/*       Loan product catalog
  /api/members/*        Member registry
  /api/loans/*          Application lifecycle + repayments
  /api/floats/*         Teller float workflows
  /api/shortages/*      Shortage approval/resolution
  /api/vaults/*         Branch vault
  /api/handovers/*      Teller-to-teller handshakes
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Prometheus collectors and middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
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
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
		})

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/loans", h.GetMemberLoans)
		})

		// Loan application routes
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.SubmitLoan)
			r.Post("/preview", h.PreviewLoan)
			r.Get("/{id}", h.GetLoan)
			r.Post("/{id}/review", h.StartReview)
			r.Post("/{id}/approve", h.ApproveLoan)
			r.Post("/{id}/reject", h.RejectLoan)
			r.Post("/{id}/cancel", h.CancelLoan)
			r.Post("/{id}/resubmit", h.ResubmitLoan)
			r.Post("/{id}/disburse", h.DisburseLoan)
			r.Post("/{id}/disbursement/confirm", h.ConfirmDisbursement)
			r.Post("/{id}/disbursement/fail", h.FailDisbursement)
			r.Get("/{id}/schedule", h.GetSchedule)
			r.Get("/{id}/repayments", h.ListRepayments)
			r.Post("/{id}/repayments", h.RecordRepayment)
		})

		// Teller float routes
		r.Route("/floats", func(r chi.Router) {
			r.Get("/", h.ListFloats)
			r.Post("/", h.OpenFloat)
			r.Get("/{id}", h.GetFloat)
			r.Post("/{id}/deposit", h.FloatDeposit)
			r.Post("/{id}/withdraw", h.FloatWithdraw)
			r.Post("/{id}/replenish", h.FloatReplenish)
			r.Post("/{id}/reconcile", h.FloatReconcile)
			r.Post("/{id}/vault-return", h.RequestVaultReturn)
			r.Post("/{id}/vault-return/accept", h.AcceptVaultReturn)
			r.Post("/{id}/vault-return/reject", h.RejectVaultReturn)
			r.Get("/{id}/transactions", h.FloatTransactions)
			r.Get("/{id}/handovers", h.FloatHandovers)
		})

		// Shortage routes
		r.Route("/shortages", func(r chi.Router) {
			r.Get("/", h.ListShortages)
			r.Post("/{id}/approve", h.ApproveShortage)
			r.Post("/{id}/resolve", h.ResolveShortage)
		})

		// Vault routes
		r.Route("/vaults", func(r chi.Router) {
			r.Get("/{branch}", h.GetVault)
			r.Post("/{branch}/deposit", h.VaultDeposit)
		})

		// Handover routes
		r.Route("/handovers", func(r chi.Router) {
			r.Post("/", h.InitiateHandover)
			r.Post("/{id}/accept", h.AcceptHandover)
			r.Post("/{id}/reject", h.RejectHandover)
			r.Post("/{id}/cancel", h.CancelHandover)
		})

		// Audit trail
		r.Get("/audit", h.ListAudit)

		// Scenario routes (demo)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}

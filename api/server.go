/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request line (see middleware.go)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/tenants/*         Roster and tenant history
  /api/ledger/*          Ledger generation, summaries, payments
  /api/collection/*      Waterfall runs and the owner approval gate
  /api/payment-plans/*   Plan lifecycle
  /api/notifications/*   Owner / manager inbox
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/policy", h.GetPolicy)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.ListTenants)
			r.Post("/", h.CreateTenant)
			r.Get("/{id}/history", h.GetTenantHistory)
			r.Post("/{id}/responses", h.RecordTenantResponse)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.GetLedgerSummary)
			r.Post("/generate", h.GenerateLedger)
			r.Get("/delinquent", h.GetDelinquent)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		r.Route("/collection", func(r chi.Router) {
			r.Post("/run-day", h.RunCollectionDay)
			r.Post("/{tenantId}/approve-pay-or-quit", h.ApprovePayOrQuit)
			r.Post("/{tenantId}/payment-plan", h.CreatePaymentPlan)
		})

		r.Post("/payment-plans/{id}/transition", h.TransitionPaymentPlan)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/{id}/acknowledge", h.AcknowledgeNotification)
		})

		r.Get("/deliveries", h.ListDeliveries)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

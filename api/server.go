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
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     Request logging
  4. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS (all project-scoped):
  /api/projects/{projectID}/accounts/*         Chart of accounts
  /api/projects/{projectID}/purchase-orders/*  PO lifecycle
  /api/projects/{projectID}/invoices/*         Invoice lifecycle
  /api/projects/{projectID}/suppliers/*        Supplier registry
  /api/projects/{projectID}/summary            Budget roll-up
  /api/projects/{projectID}/reports/{kind}     CSV/XLSX exports

SECURITY NOTE:
  No authentication middleware. The X-User-Id header is trusted as if a
  reverse proxy injected it after authenticating.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
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

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id"},
		AllowCredentials: true,
	}))

	r.Route("/api/projects/{projectID}", func(r chi.Router) {
		// Chart of accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Get("/{id}/subaccounts", h.ListSubAccounts)
			r.Post("/{id}/subaccounts", h.CreateSubAccount)
		})
		r.Route("/subaccounts", func(r chi.Router) {
			r.Put("/{id}/budget", h.UpdateBudget)
			r.Delete("/{id}", h.DeleteSubAccount)
		})

		// Purchase orders
		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", h.ListPurchaseOrders)
			r.Post("/", h.CreatePurchaseOrder)
			r.Get("/{id}", h.GetPurchaseOrder)
			r.Post("/{id}/submit", h.SubmitPurchaseOrder)
			r.Post("/{id}/decision", h.DecidePurchaseOrder)
			r.Delete("/{id}", h.DeletePurchaseOrder)
		})

		// Invoices
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Post("/sweep-overdue", h.SweepOverdue)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/decision", h.DecideInvoice)
			r.Post("/{id}/pay", h.PayInvoice)
			r.Post("/{id}/cancel", h.CancelInvoice)
			r.Delete("/{id}", h.DeleteInvoice)
		})

		// Suppliers
		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Post("/", h.CreateSupplier)
			r.Get("/{id}", h.GetSupplier)
			r.Delete("/{id}", h.DeleteSupplier)
		})

		// Reports
		r.Get("/summary", h.GetSummary)
		r.Get("/reports/{kind}", h.GetReport)
	})

	return r
}

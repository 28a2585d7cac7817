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
  4. CORS:       Cross-origin requests for frontend

TENANT SCOPING:
  Every /api route is tenant-scoped. The org ID arrives in the X-Org-ID
  header (or the org_id query param); requests without one are rejected
  with 400 before the handler runs.

ROUTE GROUPS:
  /api/dashboard          Aggregated dashboard data
  /api/revenue/*          Revenue report, totals, CSV/XLSX export
  /api/sync/*             Idempotent commission and revenue sync
  /api/grids/*            Commission grid management
  /api/campaigns/*        Bonus campaigns
  /api/compliance/*       Rate cap rules and alerts
  /api/settlements/*      Settlement reconciliation workflow
  /api/ingest/*           Normalized batch ingestion
  /api/calculate          Single-policy calculation preview

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
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Org-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(requireTenant)

		r.Get("/dashboard", h.GetDashboard)

		// Revenue report routes
		r.Route("/revenue", func(r chi.Router) {
			r.Get("/", h.GetRevenue)
			r.Get("/export", h.ExportRevenueCSV)
			r.Get("/export.xlsx", h.ExportRevenueXLSX)
			r.Post("/{id}/status", h.UpdateRecordStatus)
		})

		// Sync routes
		r.Route("/sync", func(r chi.Router) {
			r.Post("/commissions", h.SyncCommissions)
			r.Post("/revenue", h.SyncRevenue)
		})

		// Grid routes
		r.Route("/grids", func(r chi.Router) {
			r.Get("/", h.ListGridEntries)
			r.Post("/", h.CreateGridEntry)
			r.Put("/{id}", h.UpdateGridEntry)
			r.Delete("/{id}", h.DeactivateGridEntry)
		})

		// Campaign routes
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
		})

		// Compliance routes
		r.Route("/compliance", func(r chi.Router) {
			r.Get("/alerts", h.ListComplianceAlerts)
			r.Get("/rules", h.ListComplianceRules)
			r.Post("/rules", h.CreateComplianceRule)
		})

		// Settlement routes
		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", h.ListSettlements)
			r.Post("/", h.CreateSettlement)
			r.Post("/{id}/approve", h.ApproveSettlement)
			r.Post("/{id}/dispute", h.DisputeSettlement)
			r.Post("/{id}/resubmit", h.ResubmitSettlement)
		})

		// Batch ingest routes
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/grids", h.IngestGridRows)
			r.Post("/statements", h.IngestStatementRows)
		})

		r.Post("/calculate", h.CalculatePreview)
	})

	return r
}

// requireTenant rejects requests without an org identifier.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenantFrom(r) == "" {
			writeErrorMessage(w, http.StatusBadRequest, "org_id is required (X-Org-ID header or org_id query param)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

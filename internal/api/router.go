package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mhodges/bigip-rule-manager/internal/api/handler"
	"github.com/mhodges/bigip-rule-manager/internal/api/middleware"
	"github.com/mhodges/bigip-rule-manager/internal/service"
	"github.com/mhodges/bigip-rule-manager/internal/storage"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(store storage.Storage, applyService *service.ApplyService, bootstrapKey string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, bootstrapKey))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Rule definitions
		ruleHandler := handler.NewRuleHandler(store, applyService)
		r.Post("/rules", ruleHandler.Create)
		r.Get("/rules", ruleHandler.List)
		r.Get("/rules/{id}", ruleHandler.Get)
		r.Put("/rules/{id}", ruleHandler.Update)
		r.Delete("/rules/{id}", ruleHandler.Delete)
		r.Post("/rules/{id}/apply", ruleHandler.Apply)
		r.Get("/rules/{id}/runs", ruleHandler.Runs)

		// Apply and history
		applyHandler := handler.NewApplyHandler(store, applyService)
		r.Post("/apply", applyHandler.Apply)
		r.Get("/runs", applyHandler.ListRuns)
	})

	return r
}

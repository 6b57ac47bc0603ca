package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "contact-import-v1")
			next.ServeHTTP(w, req)
		})
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api/import", func(r chi.Router) {
		r.Get("/fields", h.HandleListFields)

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.HandleCreateBatch)
			r.Get("/{batchId}", h.HandleGetBatch)
			r.Delete("/{batchId}", h.HandleDeleteBatch)
			r.Put("/{batchId}/mapping", h.HandleSetMapping)
			r.Post("/{batchId}/validate", h.HandleValidate)
			r.Post("/{batchId}/commit", h.HandleCommit)
		})

		r.Route("/external", func(r chi.Router) {
			r.Post("/", h.HandleStartExternalImport)
			r.Get("/", h.HandleListJobs)
			r.Get("/{jobId}", h.HandleGetProgress)
		})
	})

	return r
}

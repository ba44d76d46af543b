package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vault-ai/internal/handlers"
	"vault-ai/internal/service"
)

// BannerMessage is returned from the root path.
const BannerMessage = "Vault AI Backend is running"

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Documents      service.DocumentService
	HealthChecks   map[string]handlers.Pinger
	MaxUploadBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	// Add CORS middleware
	r.Use(CORS)

	uploadHandler := handlers.NewUploadHandler(deps.Documents, deps.MaxUploadBytes)
	queryHandler := handlers.NewQueryHandler(deps.Documents)
	vaultsHandler := handlers.NewVaultsHandler(deps.Documents)
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)

	// Register API routes
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/v1/vaults", func(r chi.Router) {
			r.Get("/", vaultsHandler.ListVaults)
			r.Method(http.MethodPost, "/{vault}/documents", uploadHandler)
			r.Method(http.MethodPost, "/{vault}/query", queryHandler)
			r.Get("/{vault}/files", vaultsHandler.ListFiles)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"` + BannerMessage + `"}` + "\n"))
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, attached to every log line
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     Structured request logging (zap), request-scoped logger in ctx
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the planning UI

ROUTE GROUPS:
  /api/engines/*                       Engine registry and connection
  /api/engines/{engineId}/workspaces/* Schema, dimension items, module data, writes
  /api/connections/*                   Saved connections
  /healthz                             Liveness

SECURITY NOTE:
  No authentication middleware. Engine credentials travel in connect bodies
  and saved connections only.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AllowedOrigins for CORS. Defaults to "*".
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	})

	r.Route("/api", func(r chi.Router) {
		// Engine routes
		r.Route("/engines", func(r chi.Router) {
			r.Get("/", h.ListEngines)
			r.Route("/{engineId}", func(r chi.Router) {
				r.Post("/connect", h.Connect)
				r.Post("/disconnect", h.Disconnect)
				r.Get("/workspaces", h.ListWorkspaces)

				r.Route("/workspaces/{workspaceId}", func(r chi.Router) {
					r.Get("/models", h.ListModels)
					r.Get("/schema", h.GetSchema)
					r.Get("/dimensions/{dimensionId}/items", h.GetDimensionItems)
					r.Get("/modules/{moduleId}/data", h.GetModuleData)
					r.Get("/modules/{moduleId}/lineItems/{lineItemId}/values", h.GetLineItemValues)
					r.Post("/modules/{moduleId}/cells", h.WriteCells)
				})
			})
		})

		// Saved connection routes
		r.Route("/connections", func(r chi.Router) {
			r.Get("/", h.ListConnections)
			r.Post("/", h.SaveConnection)
			r.Get("/{id}", h.GetConnection)
			r.Delete("/{id}", h.DeleteConnection)
			r.Post("/{id}/connect", h.ConnectSaved)
		})
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/handler/health"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/handler/interpreter"
	middlewarePkg "github.com/zhouzirui/clinic-interpreter/backend/internal/middleware"
	"github.com/zhouzirui/clinic-interpreter/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. metrics may be nil when the
// Prometheus endpoint is disabled.
func NewRouter(interp *interpreter.Handler, healthHandler *health.Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.AccessLog())
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// WebSocket entry points: "/" and "/ws"
	interp.RegisterRoutes(r)

	healthHandler.RegisterRoutes(r)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}

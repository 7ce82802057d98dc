package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/clustermap/internal/resultservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *resultservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Snapshots.
	r.Post("/results", h.SubmitResult)
	r.Get("/results", h.ListResults)
	r.Get("/results/current", h.CurrentResult)
	r.Get("/results/{seq}", h.GetResult)

	// Published display tree.
	r.Get("/tree", h.Tree)

	// Viewer selection, forwarded to the renderer.
	r.Post("/selection", h.Select)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

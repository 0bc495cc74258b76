package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// When it also implements ChangeNotifier, manual syncs are announced on it.
func NewRouter(svc Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	notifier, _ := sseHandler.(ChangeNotifier)
	h := NewHandler(svc, notifier)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes/roots", h.Roots)

	r.Route("/note", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Post("/", h.CreateNote)
		r.Put("/", h.SaveNote)
		r.Delete("/", h.DeleteNote)

		r.Post("/rename", h.RenameNote)
		r.Post("/archive", h.ArchiveNote)
		r.Post("/unarchive", h.UnarchiveNote)

		r.Get("/children", h.Children)
		r.Get("/parent", h.Parent)
		r.Get("/ancestors", h.Ancestors)
		r.Get("/exists", h.Exists)
	})

	r.Get("/search", h.Search)
	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stickies/internal/preview"
)

// RouterConfig carries the optional collaborators of the API router.
type RouterConfig struct {
	AuthEnabled  bool
	Token        string
	DefaultOwner string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events  http.Handler
	Uploads ImageStore
	Preview *preview.Renderer
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Preview)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// SSE endpoint (protected by same auth middleware, all owners).
	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	if cfg.Uploads != nil {
		r.Post("/uploads", NewUploadHandler(cfg.Uploads).Upload)
	}

	r.Group(func(r chi.Router) {
		r.Use(OwnerMiddleware(cfg.DefaultOwner))

		// Items CRUD.
		r.Get("/items", h.ListItems)
		r.Post("/items", h.CreateItem)
		r.Get("/items/{id}", h.GetItem)
		r.Put("/items/{id}", h.UpdateItem)
		r.Delete("/items/{id}", h.DeleteItem)
		r.Get("/items/{id}/document", h.GetDocument)
		r.Get("/items/{id}/preview", h.GetPreview)

		// Tag taxonomy.
		r.Get("/tags", h.TagTree)
		r.Get("/tags/suggest", h.SuggestTags)
		r.Post("/tags/rename", h.RenameTag)
		r.Post("/tags/move", h.MoveTag)
		r.Post("/tags/delete", h.DeleteTag)
		r.Post("/tags/children", h.AddChildTag)

		// Search.
		r.Get("/search", h.Search)
	})

	return r
}

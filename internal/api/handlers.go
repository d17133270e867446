package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/preview"
	"github.com/starford/stickies/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc     Service
	preview *preview.Renderer
}

// NewHandler creates a new Handler.
func NewHandler(svc Service, pr *preview.Renderer) *Handler {
	if pr == nil {
		pr = preview.New("")
	}
	return &Handler{svc: svc, preview: pr}
}

// ListItems handles GET /api/items.
//
//	@Summary		List items, optionally restricted to a tag subtree
//	@Tags			items
//	@Produce		json
//	@Param			tag		query		string	false	"Tag path; descendants match too"
//	@Success		200		{object}	ItemListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context(), ownerFrom(r), r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, "list items", err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Total: len(items)})
}

// GetItem handles GET /api/items/{id}.
//
//	@Summary		Get a single item
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	models.Item
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.GetItem(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get item", err)
		return
	}
	w.Header().Set("ETag", `"`+it.Checksum+`"`)
	writeJSON(w, http.StatusOK, it)
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create an item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ItemRequest	true	"Item to create"
//	@Success		201		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	it, err := h.svc.CreateItem(r.Context(), ownerFrom(r), req)
	if err != nil {
		writeError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// UpdateItem handles PUT /api/items/{id}.
//
//	@Summary		Replace an item with optimistic concurrency
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string		true	"Item id"
//	@Param			If-Match	header		string		false	"Checksum from a previous read"
//	@Param			body		body		ItemRequest	true	"Updated item"
//	@Success		200			{object}	models.Item
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [put]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	it, err := h.svc.UpdateItem(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), req, ifMatch)
	if err != nil {
		writeError(w, "update item", err)
		return
	}
	w.Header().Set("ETag", `"`+it.Checksum+`"`)
	writeJSON(w, http.StatusOK, it)
}

// DeleteItem handles DELETE /api/items/{id}.
//
//	@Summary		Delete an item
//	@Tags			items
//	@Param			id	path	string	true	"Item id"
//	@Success		204	"Item deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDocument handles GET /api/items/{id}/document.
//
//	@Summary		Get the decoded structure of an item body
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	DocumentResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	owner, id := ownerFrom(r), chi.URLParam(r, "id")
	it, err := h.svc.GetItem(r.Context(), owner, id)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	doc, err := h.svc.Document(r.Context(), owner, id)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{ID: it.ID, Checksum: it.Checksum, Document: doc})
}

// GetPreview handles GET /api/items/{id}/preview.
//
//	@Summary		Render an item body as HTML
//	@Tags			items
//	@Produce		html
//	@Param			id	path	string	true	"Item id"
//	@Success		200	{string}	string	"HTML fragment"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/preview [get]
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.GetItem(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "preview item", err)
		return
	}
	out, err := h.preview.Render(it.Body)
	if err != nil {
		writeError(w, "preview item", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across items
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	results, err := h.svc.Search(r.Context(), ownerFrom(r), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

package api

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/tagtree"
	"github.com/starford/stickies/internal/taxonomy"
)

// TagTree handles GET /api/tags.
//
//	@Summary		Get the tag forest with per-node item counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagTreeResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) TagTree(w http.ResponseWriter, r *http.Request) {
	roots, err := h.svc.TagTree(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, "tag tree", err)
		return
	}
	if roots == nil {
		roots = []*tagtree.Node{}
	}
	writeJSON(w, http.StatusOK, TagTreeResponse{Roots: roots})
}

// SuggestTags handles GET /api/tags/suggest.
//
//	@Summary		Completion candidates for a partial tag
//	@Tags			tags
//	@Produce		json
//	@Param			q	query		string	false	"Partial tag, with or without leading #"
//	@Success		200	{object}	SuggestResponse
//	@Security		BearerAuth
//	@Router			/tags/suggest [get]
func (h *Handler) SuggestTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	paths, err := h.svc.Suggest(r.Context(), ownerFrom(r), q)
	if err != nil {
		writeError(w, "suggest tags", err)
		return
	}
	if paths == nil {
		paths = []tagpath.Path{}
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Query: q, Candidates: paths})
}

// RenameTag handles POST /api/tags/rename.
//
//	@Summary		Rename a tag and its subtree across all items
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameTagRequest	true	"Rename"
//	@Success		200		{object}	MutationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/rename [post]
func (h *Handler) RenameTag(w http.ResponseWriter, r *http.Request) {
	var req RenameTagRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.svc.RenameTag(r.Context(), ownerFrom(r), req.From, req.To)
	writeMutation(w, "rename tag", res, err)
}

// MoveTag handles POST /api/tags/move.
//
//	@Summary		Reparent a tag and its subtree
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveTagRequest	true	"Move"
//	@Success		200		{object}	MutationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/move [post]
func (h *Handler) MoveTag(w http.ResponseWriter, r *http.Request) {
	var req MoveTagRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.svc.MoveTag(r.Context(), ownerFrom(r), req.Path, req.Parent)
	writeMutation(w, "move tag", res, err)
}

// DeleteTag handles POST /api/tags/delete.
//
//	@Summary		Remove a tag and its subtree from all items
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteTagRequest	true	"Delete"
//	@Success		200		{object}	MutationResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/delete [post]
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	var req DeleteTagRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.svc.DeleteTag(r.Context(), ownerFrom(r), req.Path)
	writeMutation(w, "delete tag", res, err)
}

// AddChildTag handles POST /api/tags/children.
//
//	@Summary		Create a child tag, optionally attaching it to an item
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddChildRequest	true	"Child"
//	@Success		201		{object}	itemservice.AddChildResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/children [post]
func (h *Handler) AddChildTag(w http.ResponseWriter, r *http.Request) {
	var req AddChildRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.svc.AddChildTag(r.Context(), ownerFrom(r), req.Parent, req.Name, req.ItemID)
	if err != nil {
		writeError(w, "add child tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func decodeValid(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func writeMutation(w http.ResponseWriter, op string, res taxonomy.Result, err error) {
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Affected: res.Affected})
}

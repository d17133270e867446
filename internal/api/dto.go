package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/stickies/internal/itemservice"
	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/store"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/tagtree"
)

// ItemRequest is the request body for creating or replacing an item.
type ItemRequest = itemservice.ItemInput

// ItemListResponse wraps item listings.
type ItemListResponse struct {
	Items []models.Item `json:"items" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// DocumentResponse is the decoded structure of an item body.
type DocumentResponse struct {
	ID       string          `json:"id"`
	Checksum string          `json:"checksum"`
	Document markup.Document `json:"document"`
}

// TagTreeResponse wraps the tag forest.
type TagTreeResponse struct {
	Roots []*tagtree.Node `json:"roots" validate:"required"`
}

// SuggestResponse lists completion candidates.
type SuggestResponse struct {
	Query      string         `json:"query"`
	Candidates []tagpath.Path `json:"candidates" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}

// MutationResponse reports how many items a taxonomy operation rewrote.
type MutationResponse struct {
	Affected int `json:"affected" example:"3"`
}

// UploadResponse is returned after a successful image upload.
type UploadResponse struct {
	URL  string `json:"url" example:"/uploads/0b6f....png" validate:"required"`
	Size int    `json:"size" example:"12345" validate:"required"`
}

// RenameTagRequest renames From and its subtree to To.
type RenameTagRequest struct {
	From string `json:"from" example:"proj"`
	To   string `json:"to" example:"work/proj"`
}

// Validate implements validation.Validatable.
func (r RenameTagRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required),
	)
}

// MoveTagRequest moves Path under Parent; an empty Parent moves it to the root.
type MoveTagRequest struct {
	Path   string `json:"path" example:"proj/a"`
	Parent string `json:"parent" example:"archive"`
}

// Validate implements validation.Validatable.
func (r MoveTagRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// DeleteTagRequest removes Path and its subtree.
type DeleteTagRequest struct {
	Path string `json:"path" example:"proj/old"`
}

// Validate implements validation.Validatable.
func (r DeleteTagRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// AddChildRequest creates Parent/Name, attaching it to ItemID when given.
type AddChildRequest struct {
	Parent string `json:"parent" example:"proj"`
	Name   string `json:"name" example:"new"`
	ItemID string `json:"item_id,omitempty"`
}

// Validate implements validation.Validatable.
func (r AddChildRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
	)
}

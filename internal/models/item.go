// Package models defines the domain types shared across stickies.
package models

import (
	"time"

	"github.com/starford/stickies/internal/tagpath"
)

// Item kinds.
const (
	KindNote = "note"
	KindTask = "task"
)

// Item is a unit of user content: free markup text plus a tag set.
type Item struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Kind      string      `json:"kind"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Tags      tagpath.Set `json:"tags"`
	Done      bool        `json:"done,omitempty"`
	Source    string      `json:"source,omitempty"` // vault-relative file path for imported items
	Checksum  string      `json:"checksum"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a copy whose tag set can be mutated independently.
func (it Item) Clone() Item {
	it.Tags = it.Tags.Clone()
	return it
}

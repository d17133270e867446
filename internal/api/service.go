package api

import (
	"context"

	"github.com/starford/stickies/internal/itemservice"
	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/store"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/tagtree"
	"github.com/starford/stickies/internal/taxonomy"
)

// Service is the application layer the handlers call.
// *itemservice.Service satisfies it.
type Service interface {
	GetItem(ctx context.Context, owner, id string) (models.Item, error)
	Document(ctx context.Context, owner, id string) (markup.Document, error)
	ListItems(ctx context.Context, owner, tag string) ([]models.Item, error)
	CreateItem(ctx context.Context, owner string, in itemservice.ItemInput) (models.Item, error)
	UpdateItem(ctx context.Context, owner, id string, in itemservice.ItemInput, ifMatch string) (models.Item, error)
	DeleteItem(ctx context.Context, owner, id string) error

	TagTree(ctx context.Context, owner string) ([]*tagtree.Node, error)
	RenameTag(ctx context.Context, owner, from, to string) (taxonomy.Result, error)
	DeleteTag(ctx context.Context, owner, path string) (taxonomy.Result, error)
	MoveTag(ctx context.Context, owner, path, parent string) (taxonomy.Result, error)
	AddChildTag(ctx context.Context, owner, parent, name, itemID string) (itemservice.AddChildResult, error)
	Suggest(ctx context.Context, owner, query string) ([]tagpath.Path, error)

	Search(ctx context.Context, owner, query string, limit int) ([]store.SearchResult, error)
}

var _ Service = (*itemservice.Service)(nil)

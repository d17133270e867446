package store

import (
	"context"

	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/taxonomy"
)

// ItemStore defines the item persistence operations.
// Consumers should depend on this interface rather than the concrete *Store
// to facilitate testing with fakes.
type ItemStore interface {
	ListItems(ctx context.Context, owner string) ([]models.Item, error)
	ListItemsByTag(ctx context.Context, owner string, path tagpath.Path) ([]models.Item, error)
	GetItem(ctx context.Context, id string) (models.Item, error)
	SaveItem(ctx context.Context, it models.Item) (models.Item, error)
	CreateItem(ctx context.Context, it models.Item) (models.Item, error)
	UpdateItem(ctx context.Context, it models.Item, ifMatch string) (models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	ListAllTags(ctx context.Context, owner string) ([]tagpath.Path, error)
	Search(ctx context.Context, owner, query string, limit int) ([]SearchResult, error)
	Sources(ctx context.Context, owner string) (map[string]SourceRef, error)
	Close() error
}

// Verify *Store satisfies ItemStore and taxonomy.Store at compile time.
var (
	_ ItemStore      = (*Store)(nil)
	_ taxonomy.Store = (*Store)(nil)
)

// Package itemservice coordinates the item store, the taxonomy mutator and
// the vault so that transports see one consistent API.
package itemservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/completion"
	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/store"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/tagtree"
	"github.com/starford/stickies/internal/taxonomy"
)

// Notifier receives change events. *sse.Broker satisfies it.
type Notifier interface {
	PublishItemEvent(kind, owner, id string)
	PublishTagsChanged(owner string)
}

// FileSync mirrors item changes to their source files. *vault.Vault
// satisfies it.
type FileSync interface {
	WriteBack(it models.Item) error
	DeleteFile(it models.Item) error
}

// ItemInput carries the client-editable fields of an item.
type ItemInput struct {
	ID    string   `json:"id,omitempty"`
	Kind  string   `json:"kind"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
	Done  bool     `json:"done"`
}

// AddChildResult is the outcome of AddChildTag.
type AddChildResult struct {
	Path      tagpath.Path `json:"path"`
	Persisted bool         `json:"persisted"`
}

// Service is the application layer over items and tags.
type Service struct {
	store    store.ItemStore
	mutator  *taxonomy.Mutator
	notifier Notifier
	files    FileSync
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the change event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithFileSync sets the vault that imported items are written back to.
func WithFileSync(f FileSync) Option {
	return func(s *Service) { s.files = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service. Taxonomy saves run with the given concurrency.
func New(st store.ItemStore, concurrency int, opts ...Option) *Service {
	s := &Service{store: st, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.mutator = taxonomy.NewMutator(&cascadeStore{svc: s},
		taxonomy.WithLogger(s.logger),
		taxonomy.WithConcurrency(concurrency))
	return s
}

// GetItem returns an item of owner, or apperr.ErrNotFound.
func (s *Service) GetItem(ctx context.Context, owner, id string) (models.Item, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return models.Item{}, err
	}
	if it.OwnerID != owner {
		return models.Item{}, fmt.Errorf("itemservice: item %s: %w", id, apperr.ErrNotFound)
	}
	return it, nil
}

// Document returns the decoded markup of an item.
func (s *Service) Document(ctx context.Context, owner, id string) (markup.Document, error) {
	it, err := s.GetItem(ctx, owner, id)
	if err != nil {
		return markup.Document{}, err
	}
	return markup.Decode(it.Body), nil
}

// ListItems returns the items of owner, restricted to the subtree of tag
// when it is non-empty.
func (s *Service) ListItems(ctx context.Context, owner, tag string) ([]models.Item, error) {
	if tag == "" {
		return s.store.ListItems(ctx, owner)
	}
	p, err := tagpath.Parse(tag)
	if err != nil {
		return nil, err
	}
	return s.store.ListItemsByTag(ctx, owner, p)
}

// CreateItem stores a new item. The body is canonicalized and its inline tag
// references join the tag set.
func (s *Service) CreateItem(ctx context.Context, owner string, in ItemInput) (models.Item, error) {
	it, err := s.fromInput(owner, in)
	if err != nil {
		return models.Item{}, err
	}
	saved, err := s.store.CreateItem(ctx, it)
	if err != nil {
		return models.Item{}, err
	}
	s.publishItem("created", saved)
	return saved, nil
}

// UpdateItem replaces an item's editable fields. A non-empty ifMatch must
// equal the current checksum.
func (s *Service) UpdateItem(ctx context.Context, owner, id string, in ItemInput, ifMatch string) (models.Item, error) {
	cur, err := s.GetItem(ctx, owner, id)
	if err != nil {
		return models.Item{}, err
	}
	in.ID = id
	it, err := s.fromInput(owner, in)
	if err != nil {
		return models.Item{}, err
	}
	it.Source = cur.Source

	saved, err := s.store.UpdateItem(ctx, it, ifMatch)
	if err != nil {
		return models.Item{}, err
	}
	s.writeBack(saved)
	s.publishItem("updated", saved)
	return saved, nil
}

// DeleteItem removes an item and its vault file.
func (s *Service) DeleteItem(ctx context.Context, owner, id string) error {
	it, err := s.GetItem(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.DeleteFile(it); err != nil {
			s.logger.Warn("itemservice: delete source failed",
				slog.String("item", id),
				slog.String("error", err.Error()))
		}
	}
	s.publishItem("deleted", it)
	return nil
}

// TagTree returns the tag forest of owner with per-node item counts.
func (s *Service) TagTree(ctx context.Context, owner string) ([]*tagtree.Node, error) {
	items, err := s.store.ListItems(ctx, owner)
	if err != nil {
		return nil, err
	}
	return tagtree.BuildFromItems(items), nil
}

// RenameTag renames a tag subtree across the items of owner.
func (s *Service) RenameTag(ctx context.Context, owner, from, to string) (taxonomy.Result, error) {
	res, err := s.mutator.Rename(ctx, owner, from, to)
	s.tagsChanged(owner, res)
	return res, err
}

// DeleteTag removes a tag subtree from the items of owner.
func (s *Service) DeleteTag(ctx context.Context, owner, path string) (taxonomy.Result, error) {
	res, err := s.mutator.Delete(ctx, owner, path)
	s.tagsChanged(owner, res)
	return res, err
}

// MoveTag reparents a tag subtree. An empty parent moves it to the root.
func (s *Service) MoveTag(ctx context.Context, owner, path, parent string) (taxonomy.Result, error) {
	res, err := s.mutator.Move(ctx, owner, path, parent)
	s.tagsChanged(owner, res)
	return res, err
}

// AddChildTag computes parent/name. With an itemID the new path is added to
// that item's tags; otherwise it exists only until some item uses it.
func (s *Service) AddChildTag(ctx context.Context, owner, parent, name, itemID string) (AddChildResult, error) {
	p, err := s.mutator.AddChild(parent, name)
	if err != nil {
		return AddChildResult{}, err
	}
	if itemID == "" {
		return AddChildResult{Path: p}, nil
	}

	it, err := s.GetItem(ctx, owner, itemID)
	if err != nil {
		return AddChildResult{}, err
	}
	if !it.Tags.Contains(p) {
		it = it.Clone()
		it.Tags.Add(p)
		saved, err := s.store.SaveItem(ctx, it)
		if err != nil {
			return AddChildResult{}, err
		}
		s.writeBack(saved)
		s.publishItem("updated", saved)
	}
	return AddChildResult{Path: p, Persisted: true}, nil
}

// Suggest returns the known tags of owner matching query.
func (s *Service) Suggest(ctx context.Context, owner, query string) ([]tagpath.Path, error) {
	known, err := s.store.ListAllTags(ctx, owner)
	if err != nil {
		return nil, err
	}
	return completion.Match(known, strings.TrimPrefix(query, "#")), nil
}

// KnownTags returns every tag of owner.
func (s *Service) KnownTags(ctx context.Context, owner string) ([]tagpath.Path, error) {
	return s.store.ListAllTags(ctx, owner)
}

// Search runs a full-text query over the items of owner.
func (s *Service) Search(ctx context.Context, owner, query string, limit int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("itemservice: empty query: %w", apperr.ErrInvalidInput)
	}
	return s.store.Search(ctx, owner, query, limit)
}

func (s *Service) fromInput(owner string, in ItemInput) (models.Item, error) {
	switch in.Kind {
	case "":
		in.Kind = models.KindNote
	case models.KindNote, models.KindTask:
	default:
		return models.Item{}, fmt.Errorf("itemservice: unknown kind %q: %w", in.Kind, apperr.ErrInvalidInput)
	}
	tags, err := tagpath.ParseSet(in.Tags)
	if err != nil {
		return models.Item{}, err
	}
	doc := markup.Decode(in.Body)
	for _, p := range doc.Tags() {
		tags.Add(p)
	}
	return models.Item{
		ID:      in.ID,
		OwnerID: owner,
		Kind:    in.Kind,
		Title:   in.Title,
		Body:    markup.Encode(doc),
		Tags:    tags,
		Done:    in.Done,
	}, nil
}

func (s *Service) writeBack(it models.Item) {
	if s.files == nil {
		return
	}
	if err := s.files.WriteBack(it); err != nil {
		s.logger.Warn("itemservice: write back failed",
			slog.String("item", it.ID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) publishItem(kind string, it models.Item) {
	if s.notifier != nil {
		s.notifier.PublishItemEvent(kind, it.OwnerID, it.ID)
	}
}

func (s *Service) tagsChanged(owner string, res taxonomy.Result) {
	if s.notifier != nil && res.Affected > 0 {
		s.notifier.PublishTagsChanged(owner)
	}
}

// cascadeStore is the store seen by the mutator: each cascaded save is
// written back to the vault and announced.
type cascadeStore struct {
	svc *Service
}

func (c *cascadeStore) ListItems(ctx context.Context, owner string) ([]models.Item, error) {
	return c.svc.store.ListItems(ctx, owner)
}

func (c *cascadeStore) SaveItem(ctx context.Context, it models.Item) (models.Item, error) {
	saved, err := c.svc.store.SaveItem(ctx, it)
	if err != nil {
		return models.Item{}, err
	}
	c.svc.writeBack(saved)
	c.svc.publishItem("updated", saved)
	return saved, nil
}

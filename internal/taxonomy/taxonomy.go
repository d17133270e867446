// Package taxonomy applies rename, delete, move and create operations to the
// tag namespace. The namespace is the union of item tag sets, so every
// mutation is a cascade over an owner's items.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

var (
	// ErrCyclicRename is returned when the target lies inside the source subtree.
	ErrCyclicRename = errors.New("cannot move a tag into its own subtree")

	// ErrItemPersist marks a failed save during a cascading mutation.
	ErrItemPersist = errors.New("item persist failed")
)

// PersistError reports a save failure part-way through a cascade.
// Affected counts the items saved before the failure; earlier writes are not
// rolled back, so the caller should retry the whole operation.
type PersistError struct {
	ItemID   string
	Affected int
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("taxonomy: save item %s (after %d updated): %v", e.ItemID, e.Affected, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{ErrItemPersist, e.Err} }

// Store is the persistence collaborator.
type Store interface {
	ListItems(ctx context.Context, ownerID string) ([]models.Item, error)
	SaveItem(ctx context.Context, item models.Item) (models.Item, error)
}

// Result summarises a mutation.
type Result struct {
	Affected int `json:"affected"`
}

// Mutator runs taxonomy operations against a Store.
type Mutator struct {
	store       Store
	logger      *slog.Logger
	concurrency int
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithLogger sets the logger used for per-item diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mutator) { m.logger = l }
}

// WithConcurrency bounds the number of saves in flight. Values below 2 keep
// saves sequential.
func WithConcurrency(n int) Option {
	return func(m *Mutator) { m.concurrency = n }
}

// NewMutator creates a Mutator.
func NewMutator(store Store, opts ...Option) *Mutator {
	m := &Mutator{store: store, logger: slog.Default(), concurrency: 1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rename moves oldPath and all descendants to newPath across the owner's items.
// Tags that collide with ones already on an item are merged.
func (m *Mutator) Rename(ctx context.Context, ownerID, oldPath, newPath string) (Result, error) {
	from, err := tagpath.Parse(oldPath)
	if err != nil {
		return Result{}, err
	}
	to, err := tagpath.Parse(newPath)
	if err != nil {
		return Result{}, err
	}
	return m.rename(ctx, ownerID, from, to)
}

func (m *Mutator) rename(ctx context.Context, ownerID string, from, to tagpath.Path) (Result, error) {
	if from == to {
		return Result{}, nil
	}
	if tagpath.IsDescendantOrSelf(from, to) {
		return Result{}, fmt.Errorf("%w: %q -> %q", ErrCyclicRename, from, to)
	}
	res, err := m.apply(ctx, ownerID, func(p tagpath.Path) (tagpath.Path, bool) {
		if tagpath.IsDescendantOrSelf(from, p) {
			return tagpath.Rebase(p, from, to), true
		}
		return p, true
	})
	if err == nil {
		m.logger.Info("taxonomy: renamed",
			slog.String("owner", ownerID),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Int("affected", res.Affected))
	}
	return res, err
}

// Delete removes path and all descendants from every item. Items left with no
// tags stay in place, untagged.
func (m *Mutator) Delete(ctx context.Context, ownerID, path string) (Result, error) {
	target, err := tagpath.Parse(path)
	if err != nil {
		return Result{}, err
	}
	res, err := m.apply(ctx, ownerID, func(p tagpath.Path) (tagpath.Path, bool) {
		return p, !tagpath.IsDescendantOrSelf(target, p)
	})
	if err == nil {
		m.logger.Info("taxonomy: deleted",
			slog.String("owner", ownerID),
			slog.String("path", target.String()),
			slog.Int("affected", res.Affected))
	}
	return res, err
}

// Move reparents path under newParent, or to the root when newParent is empty.
func (m *Mutator) Move(ctx context.Context, ownerID, path, newParent string) (Result, error) {
	from, err := tagpath.Parse(path)
	if err != nil {
		return Result{}, err
	}
	var parent tagpath.Path
	if newParent != "" {
		if parent, err = tagpath.Parse(newParent); err != nil {
			return Result{}, err
		}
	}
	to, err := parent.Child(from.LastSegment())
	if err != nil {
		return Result{}, err
	}
	return m.rename(ctx, ownerID, from, to)
}

// AddChild computes the path of a new child tag. No item is touched: the
// path becomes part of the namespace once some item references it.
func (m *Mutator) AddChild(parentPath, name string) (tagpath.Path, error) {
	var parent tagpath.Path
	if parentPath != "" {
		p, err := tagpath.Parse(parentPath)
		if err != nil {
			return tagpath.Path{}, err
		}
		parent = p
	}
	return parent.Child(name)
}

// apply maps every tag on the owner's items, both in the tag set and in
// "#tag" references inside the body. A body that kept its old references
// would bring the old tags back on the next save or vault import.
func (m *Mutator) apply(ctx context.Context, ownerID string, fn markup.TagMapper) (Result, error) {
	items, err := m.store.ListItems(ctx, ownerID)
	if err != nil {
		return Result{}, fmt.Errorf("taxonomy: list items: %w", err)
	}

	var pending []models.Item
	for _, it := range items {
		if it.OwnerID != ownerID {
			continue
		}
		next := mapSet(it.Tags, fn)
		doc, bodyChanged := markup.RewriteTags(markup.Decode(it.Body), fn)
		if next.Equal(it.Tags) && !bodyChanged {
			continue
		}
		updated := it.Clone()
		updated.Tags = next
		if bodyChanged {
			updated.Body = markup.Encode(doc)
		}
		pending = append(pending, updated)
	}

	if m.concurrency < 2 {
		return m.saveSequential(ctx, pending)
	}
	return m.saveConcurrent(ctx, pending)
}

func mapSet(tags tagpath.Set, fn markup.TagMapper) tagpath.Set {
	var next tagpath.Set
	for _, t := range tags.Paths() {
		if p, keep := fn(t); keep {
			next.Add(p)
		}
	}
	return next
}

func (m *Mutator) saveSequential(ctx context.Context, items []models.Item) (Result, error) {
	var res Result
	for _, it := range items {
		if _, err := m.store.SaveItem(ctx, it); err != nil {
			m.logger.Warn("taxonomy: save failed",
				slog.String("item", it.ID),
				slog.String("error", err.Error()))
			return res, &PersistError{ItemID: it.ID, Affected: res.Affected, Err: err}
		}
		res.Affected++
	}
	return res, nil
}

// saveConcurrent fans saves out. Each item is written independently, so the
// only shared state is the success counter.
func (m *Mutator) saveConcurrent(ctx context.Context, items []models.Item) (Result, error) {
	var (
		saved atomic.Int64
		first atomic.Pointer[PersistError]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, it := range items {
		g.Go(func() error {
			if _, err := m.store.SaveItem(gctx, it); err != nil {
				m.logger.Warn("taxonomy: save failed",
					slog.String("item", it.ID),
					slog.String("error", err.Error()))
				first.CompareAndSwap(nil, &PersistError{ItemID: it.ID, Err: err})
				return err
			}
			saved.Add(1)
			return nil
		})
	}
	err := g.Wait()
	res := Result{Affected: int(saved.Load())}
	if err != nil {
		pe := first.Load()
		pe.Affected = res.Affected
		return res, pe
	}
	return res, nil
}

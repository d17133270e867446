package vault

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/storage"
	"github.com/starford/stickies/internal/store"
)

// Event kinds passed to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a vault-driven item change with the item id.
type EventCallback func(kind, itemID string)

// ItemStore is the subset of the item store the vault writes through.
type ItemStore interface {
	SaveItem(ctx context.Context, it models.Item) (models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	Sources(ctx context.Context, owner string) (map[string]store.SourceRef, error)
}

// Vault maps markdown files under a root to items of one owner.
type Vault struct {
	files  storage.Provider
	items  ItemStore
	owner  string
	logger *slog.Logger
	cb     EventCallback
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithEventCallback sets the callback invoked after each item change.
func WithEventCallback(cb EventCallback) Option {
	return func(v *Vault) { v.cb = cb }
}

// New returns a vault over files whose items belong to owner.
func New(files storage.Provider, items ItemStore, owner string, opts ...Option) *Vault {
	v := &Vault{files: files, items: items, owner: owner, logger: slog.Default()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Owner returns the owner of imported items.
func (v *Vault) Owner() string { return v.owner }

// Sync walks the vault and brings the store up to date:
//   - new/changed files are parsed and saved
//   - items whose file is gone are deleted
func (v *Vault) Sync(ctx context.Context) error {
	files, err := v.files.List("", ".md")
	if err != nil {
		return err
	}
	refs, err := v.items.Sources(ctx, v.owner)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	live := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}
		id, err := v.importFile(ctx, f.Path, refs)
		if err != nil {
			v.logger.Warn("sync: import failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		live[id] = struct{}{}
	}

	// A moved file keeps its frontmatter id, so its item is live under the
	// new source and must survive the stale pass.
	for src, ref := range refs {
		if _, ok := disk[src]; ok {
			continue
		}
		if _, ok := live[ref.ID]; ok {
			continue
		}
		if err := v.items.DeleteItem(ctx, ref.ID); err != nil {
			v.logger.Warn("sync: delete failed", slog.String("path", src), slog.String("error", err.Error()))
			continue
		}
		v.logger.Debug("sync: removed stale", slog.String("path", src))
		v.emit(EventDeleted, ref.ID)
	}
	return nil
}

// Import parses the file at rel and saves it when its content changed.
func (v *Vault) Import(ctx context.Context, rel string) error {
	refs, err := v.items.Sources(ctx, v.owner)
	if err != nil {
		return err
	}
	_, err = v.importFile(ctx, rel, refs)
	return err
}

// importFile returns the id of the item backing rel.
func (v *Vault) importFile(ctx context.Context, rel string, refs map[string]store.SourceRef) (string, error) {
	data, err := v.files.Read(rel)
	if err != nil {
		return "", err
	}
	f, err := Parse(data)
	if err != nil {
		return "", err
	}
	for _, raw := range f.InvalidTags {
		v.logger.Warn("vault: dropping invalid tag", slog.String("path", rel), slog.String("tag", raw))
	}

	ref, known := refs[rel]
	it := models.Item{
		ID:      f.ID,
		OwnerID: v.owner,
		Kind:    f.Kind,
		Title:   f.Title,
		Body:    f.Body,
		Tags:    f.Tags,
		Done:    f.Done,
		Source:  rel,
	}
	switch {
	case known:
		it.ID = ref.ID
	case it.ID == "":
		it.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("stickies:"+v.owner+":"+rel)).String()
	}
	if known && store.Checksum(it) == ref.Checksum {
		return it.ID, nil
	}

	if _, err := v.items.SaveItem(ctx, it); err != nil {
		return "", fmt.Errorf("vault: save %s: %w", rel, err)
	}
	kind := EventCreated
	if known {
		kind = EventUpdated
	}
	v.logger.Debug("vault: imported", slog.String("path", rel), slog.String("op", kind))
	v.emit(kind, it.ID)
	return it.ID, nil
}

// Remove deletes the item imported from rel, if any.
func (v *Vault) Remove(ctx context.Context, rel string) error {
	refs, err := v.items.Sources(ctx, v.owner)
	if err != nil {
		return err
	}
	ref, ok := refs[rel]
	if !ok {
		return nil
	}
	if err := v.items.DeleteItem(ctx, ref.ID); err != nil {
		return err
	}
	v.emit(EventDeleted, ref.ID)
	return nil
}

// WriteBack writes an item that came from the vault to its file, so that
// edits and taxonomy mutations made through the service reach disk. Items
// without a source are ignored.
func (v *Vault) WriteBack(it models.Item) error {
	if it.Source == "" || it.OwnerID != v.owner {
		return nil
	}
	if path.Ext(it.Source) != ".md" {
		return fmt.Errorf("vault: refusing to write non-markdown source %q", it.Source)
	}
	data, err := Render(it)
	if err != nil {
		return err
	}
	return v.files.Write(it.Source, data)
}

// DeleteFile removes the source file of an item.
func (v *Vault) DeleteFile(it models.Item) error {
	if it.Source == "" || it.OwnerID != v.owner {
		return nil
	}
	return v.files.Delete(it.Source)
}

func (v *Vault) emit(kind, id string) {
	if v.cb != nil {
		v.cb(kind, id)
	}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/checksum"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

const itemColumns = `id, owner, kind, title, body, tags, done, source, checksum, updated_at`

// Checksum digests the fields of an item that a client can edit.
func Checksum(it models.Item) string {
	done := "0"
	if it.Done {
		done = "1"
	}
	return checksum.Fields(it.Kind, it.Title, it.Body, strings.Join(it.Tags.Strings(), "\n"), done)
}

// ListItems returns every item of owner, most recently updated first.
func (s *Store) ListItems(ctx context.Context, owner string) ([]models.Item, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE owner = ?
		ORDER BY updated_at DESC, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	return s.scanItems(rows)
}

// ListItemsByTag returns the items of owner tagged with path or one of its
// descendants.
func (s *Store) ListItemsByTag(ctx context.Context, owner string, path tagpath.Path) ([]models.Item, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE owner = ? AND id IN (
			SELECT item_id FROM item_tags
			WHERE owner = ? AND (path = ? OR substr(path, 1, ?) = ?)
		)
		ORDER BY updated_at DESC, id
	`, owner, owner, path.String(), len(path.String())+1, path.String()+"/")
	if err != nil {
		return nil, fmt.Errorf("store: list items by tag: %w", err)
	}
	return s.scanItems(rows)
}

// GetItem returns the item with id, or apperr.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id string) (models.Item, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := s.scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, fmt.Errorf("store: item %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("store: get item: %w", err)
	}
	return it, nil
}

// SaveItem inserts or replaces it (last write wins), assigning an id when
// empty and recomputing the checksum and update time.
func (s *Store) SaveItem(ctx context.Context, it models.Item) (models.Item, error) {
	return s.write(ctx, it, func(tx *sql.Tx, it models.Item) error { return nil })
}

// CreateItem inserts it and fails with apperr.ErrAlreadyExists if the id is taken.
func (s *Store) CreateItem(ctx context.Context, it models.Item) (models.Item, error) {
	return s.write(ctx, it, func(tx *sql.Tx, it models.Item) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM items WHERE id = ?`, it.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("store: item %s: %w", it.ID, apperr.ErrAlreadyExists)
		}
		return nil
	})
}

// UpdateItem replaces an existing item. A non-empty ifMatch must equal the
// stored checksum, else apperr.ErrConflict.
func (s *Store) UpdateItem(ctx context.Context, it models.Item, ifMatch string) (models.Item, error) {
	return s.write(ctx, it, func(tx *sql.Tx, it models.Item) error {
		var cs string
		err := tx.QueryRowContext(ctx, `SELECT checksum FROM items WHERE id = ?`, it.ID).Scan(&cs)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: item %s: %w", it.ID, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if ifMatch != "" && ifMatch != cs {
			return fmt.Errorf("store: item %s: %w", it.ID, apperr.ErrConflict)
		}
		return nil
	})
}

// write runs check and the upsert in one transaction.
func (s *Store) write(ctx context.Context, it models.Item, check func(*sql.Tx, models.Item) error) (models.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Kind == "" {
		it.Kind = models.KindNote
	}
	it.Checksum = Checksum(it)
	it.UpdatedAt = time.Now().UTC()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Item{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := check(tx, it); err != nil {
		return models.Item{}, err
	}

	tags := it.Tags.Strings()
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner      = excluded.owner,
			kind       = excluded.kind,
			title      = excluded.title,
			body       = excluded.body,
			tags       = excluded.tags,
			done       = excluded.done,
			source     = excluded.source,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, it.ID, it.OwnerID, it.Kind, it.Title, it.Body, string(tagsJSON), it.Done, it.Source, it.Checksum, it.UpdatedAt)
	if err != nil {
		return models.Item{}, fmt.Errorf("store: upsert item: %w", err)
	}

	if err := ftsUpsert(tx, it.ID, it.OwnerID, it.Title, it.Body, tags); err != nil {
		return models.Item{}, err
	}

	// Replace tag rows: delete old then bulk insert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, it.ID); err != nil {
		return models.Item{}, fmt.Errorf("store: clear tags: %w", err)
	}
	if len(tags) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO item_tags (item_id, owner, path) VALUES (?, ?, ?)`)
		if err != nil {
			return models.Item{}, fmt.Errorf("store: prepare tag insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range tags {
			if _, err := stmt.ExecContext(ctx, it.ID, it.OwnerID, p); err != nil {
				return models.Item{}, fmt.Errorf("store: insert tag: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Item{}, fmt.Errorf("store: commit: %w", err)
	}
	return it, nil
}

// DeleteItem removes an item, its FTS entry and its tag rows.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: item %s: %w", id, apperr.ErrNotFound)
	}
	ftsDelete(tx, id)
	_, _ = tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, id)

	return tx.Commit()
}

// ListAllTags returns the sorted union of the tag sets of owner's items.
func (s *Store) ListAllTags(ctx context.Context, owner string) ([]tagpath.Path, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT path FROM item_tags WHERE owner = ? ORDER BY path`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: list tags: %w", err)
	}
	defer rows.Close()

	var raw []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		raw = append(raw, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	set, invalid := tagpath.ParseSetLenient(raw)
	s.logInvalid("", invalid)
	return set.Paths(), nil
}

// Sources maps the vault source path of each imported item of owner to its
// id and checksum.
func (s *Store) Sources(ctx context.Context, owner string) (map[string]SourceRef, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT source, id, checksum FROM items WHERE owner = ? AND source != ''`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: sources: %w", err)
	}
	defer rows.Close()
	out := make(map[string]SourceRef)
	for rows.Next() {
		var src string
		var ref SourceRef
		if err := rows.Scan(&src, &ref.ID, &ref.Checksum); err != nil {
			return nil, err
		}
		out[src] = ref
	}
	return out, rows.Err()
}

// SourceRef identifies the item imported from a vault file.
type SourceRef struct {
	ID       string
	Checksum string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanItem(r rowScanner) (models.Item, error) {
	var (
		it       models.Item
		tagsJSON string
	)
	if err := r.Scan(&it.ID, &it.OwnerID, &it.Kind, &it.Title, &it.Body, &tagsJSON,
		&it.Done, &it.Source, &it.Checksum, &it.UpdatedAt); err != nil {
		return models.Item{}, err
	}
	var raw []string
	if err := json.Unmarshal([]byte(tagsJSON), &raw); err != nil {
		s.logger.Warn("store: unreadable tag list", slog.String("item", it.ID), slog.String("error", err.Error()))
	}
	var invalid []string
	it.Tags, invalid = tagpath.ParseSetLenient(raw)
	s.logInvalid(it.ID, invalid)
	return it, nil
}

func (s *Store) scanItems(rows *sql.Rows) ([]models.Item, error) {
	defer rows.Close()
	var out []models.Item
	for rows.Next() {
		it, err := s.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) logInvalid(itemID string, invalid []string) {
	for _, raw := range invalid {
		s.logger.Warn("store: dropping invalid tag",
			slog.String("item", itemID),
			slog.String("tag", raw),
		)
	}
}

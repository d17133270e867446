//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			id UNINDEXED,
			owner UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsUpsert indexes tags with "/" replaced by spaces so each segment is a token.
func ftsUpsert(tx *sql.Tx, id, owner, title, body string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO items_fts (id, owner, title, body, tags) VALUES (?, ?, ?, ?, ?)`,
		id, owner, title, body, strings.ReplaceAll(strings.Join(tags, " "), "/", " "))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE id = ?`, id)
}

// Search performs an FTS5 full-text search over owner's items and returns
// matches with snippets.
func (s *Store) Search(ctx context.Context, owner, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id,
		       title,
		       snippet(items_fts, 3, '<b>', '</b>', '...', 64)
		FROM items_fts
		WHERE items_fts MATCH ? AND owner = ?
		ORDER BY rank
		LIMIT ?
	`, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

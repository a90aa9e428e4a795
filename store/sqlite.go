package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/John-Curcio/grepl-scraper/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS raw_page (
	collection_url TEXT,
	page_index     INTEGER,
	scroll_index   INTEGER,
	captured_at    TEXT, -- ISO-8601
	markup         TEXT,
	UNIQUE(collection_url, page_index, scroll_index, captured_at)
);
`

// pragmas applied on open. WAL keeps readers (export, resume queries) from
// blocking the single writer; busy_timeout covers accidental overlap between
// a capture run and an export.
var pragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA busy_timeout = 10000;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA foreign_keys = ON;",
}

// SQLiteStore persists snapshots in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the snapshot database at path.
// Pass ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The session is a single sequential writer, and a pooled ":memory:"
	// handle would give every connection its own database.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// InsertIfAbsent writes the snapshot unless its key already exists.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, snap *models.Snapshot) (bool, error) {
	if err := snap.Validate(); err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_page (collection_url, page_index, scroll_index, captured_at, markup)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		snap.CollectionURL, snap.PageIndex, snap.ScrollIndex, snap.CapturedAt, snap.Markup,
	)
	if err != nil {
		return false, fmt.Errorf("store: insert snapshot %s: %w", snap.Key(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns snapshots ordered by (page_index, scroll_index).
func (s *SQLiteStore) List(ctx context.Context, collectionURL string, limit, offset int) ([]*models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection_url, page_index, scroll_index, captured_at, markup
		 FROM raw_page
		 WHERE collection_url = ?
		 ORDER BY page_index, scroll_index, captured_at
		 LIMIT ? OFFSET ?`,
		collectionURL, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.Snapshot
	for rows.Next() {
		snap := &models.Snapshot{}
		if err := rows.Scan(&snap.CollectionURL, &snap.PageIndex, &snap.ScrollIndex, &snap.CapturedAt, &snap.Markup); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate snapshots: %w", err)
	}
	return snaps, nil
}

// MaxPageIndex reports the highest captured page index for the URL.
func (s *SQLiteStore) MaxPageIndex(ctx context.Context, collectionURL string) (int, bool, error) {
	var idx sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(page_index) FROM raw_page WHERE collection_url = ?`,
		collectionURL,
	).Scan(&idx)
	if err != nil {
		return 0, false, fmt.Errorf("store: max page index: %w", err)
	}
	if !idx.Valid {
		return 0, false, nil
	}
	return int(idx.Int64), true, nil
}

// Count returns the total number of stored snapshots.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_page`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Package sqlite stores snapshot records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/store"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore keeps one row per physical node. The key column holds the
// folded path and is the primary key.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens the database at dbPath. The dbPath can be ":memory:" for an
// in-memory database or a file path.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// An in-memory database only lives as long as its single connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db: db,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the database schema.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vfsindex_records (
		key TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		is_file INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		modify_time INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (*SQLiteStore) Name() string {
	return "sqlite"
}

// Save replaces all stored records within one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vfsindex_records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO vfsindex_records (key, path, is_file, size, modify_time)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		isFile := 0
		if r.IsFile {
			isFile = 1
		}
		if _, err := stmt.ExecContext(ctx, data.Key(r.Path), r.Path, isFile, r.Size, r.LastModified.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert record '%s': %w", r.Path, err)
		}
	}

	return tx.Commit()
}

// Load returns all records ordered by key, parents before children.
func (s *SQLiteStore) Load(ctx context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT path, is_file, size, modify_time FROM vfsindex_records ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var r store.Record
		var isFile int
		var modifyTime int64
		if err := rows.Scan(&r.Path, &isFile, &r.Size, &modifyTime); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.IsFile = isFile != 0
		r.LastModified = time.Unix(0, modifyTime).UTC()
		out = append(out, r)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Close()
}

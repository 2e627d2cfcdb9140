package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// StateStore is the durable per-item state table plus the search cache for
// one session. Reads run concurrently through database/sql's pool; writes are
// serialized by an internal mutex on top of WAL mode.
type StateStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the state database, creating the schema idempotently.
func Open(dbPath string) (*StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	s := &StateStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func (s *StateStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			item_id TEXT NOT NULL,
			job_name TEXT NOT NULL,
			collection TEXT NOT NULL DEFAULT '',
			size_kb REAL NOT NULL DEFAULT 0,
			md5 TEXT NOT NULL DEFAULT '',
			bytes_downloaded INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			download_path TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (item_id, job_name)
		)`,
		`CREATE TABLE IF NOT EXISTS search_cache (
			item_id TEXT PRIMARY KEY,
			collection TEXT NOT NULL DEFAULT '',
			size_kb REAL NOT NULL DEFAULT 0,
			sensing_start TEXT NOT NULL DEFAULT '',
			sensing_end TEXT NOT NULL DEFAULT '',
			cached_at TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}

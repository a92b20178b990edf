package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists cache entries to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so reads keep working while bulk fetches write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite cache store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key  TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			stored_at  INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (StoredEntry, error) {
	var payload []byte
	var storedAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, stored_at, expires_at FROM cache_entries WHERE cache_key = ?`, key).
		Scan(&payload, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredEntry{}, ErrNotFound
	}
	if err != nil {
		return StoredEntry{}, fmt.Errorf("select cache entry: %w", err)
	}
	return StoredEntry{
		Payload:   payload,
		StoredAt:  time.Unix(0, storedAt),
		ExpiresAt: time.Unix(0, expiresAt),
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, entry StoredEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, payload, stored_at, expires_at)
		 VALUES (?,?,?,?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   payload    = excluded.payload,
		   stored_at  = excluded.stored_at,
		   expires_at = excluded.expires_at`,
		key, entry.Payload, entry.StoredAt.UnixNano(), entry.ExpiresAt.UnixNano())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key)
	return err
}

func (s *SQLiteStore) Purge(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) OldestAge(ctx context.Context, now time.Time) (time.Duration, error) {
	var storedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(stored_at) FROM cache_entries`).Scan(&storedAt)
	if err != nil {
		return 0, err
	}
	if !storedAt.Valid {
		return 0, nil
	}
	age := now.Sub(time.Unix(0, storedAt.Int64))
	if age < 0 {
		age = 0
	}
	return age, nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite cache store")
	return s.db.Close()
}

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// sqlite driver
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database file. It serves
// single-node deployments that run without Redis.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: in-memory databases are per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS kv_lists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_lists_key ON kv_lists(key, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expiry converts a ttl into an absolute unix-millisecond deadline; 0 means none.
func (s *SQLiteStore) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixMilli()
}

func (s *SQLiteStore) live(expiresAt int64) bool {
	return expiresAt == 0 || expiresAt > s.now().UnixMilli()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !s.live(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.expiry(ttl))
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_lists WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	now := s.now().UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_entries
		WHERE instr(key, ?) = 1 AND (expires_at = 0 OR expires_at > ?)
		UNION
		SELECT DISTINCT key FROM kv_lists
		WHERE instr(key, ?) = 1 AND (expires_at = 0 OR expires_at > ?)`,
		prefix, now, prefix, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// incr applies fn to the current counter text at key inside one transaction.
func (s *SQLiteStore) incr(ctx context.Context, key string, ttl time.Duration, fn func(cur string) (string, error)) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		cur       []byte
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).Scan(&cur, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		cur, expiresAt = nil, 0
	case err != nil:
		return "", err
	case !s.live(expiresAt):
		cur, expiresAt = nil, 0
	}

	next, err := fn(string(cur))
	if err != nil {
		return "", err
	}
	if ttl > 0 {
		expiresAt = s.expiry(ttl)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, []byte(next), expiresAt); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return next, nil
}

func (s *SQLiteStore) IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	var result float64
	_, err := s.incr(ctx, key, ttl, func(cur string) (string, error) {
		var v float64
		if cur != "" {
			parsed, err := strconv.ParseFloat(cur, 64)
			if err != nil {
				return "", fmt.Errorf("value at %q is not a float: %w", key, err)
			}
			v = parsed
		}
		result = v + delta
		return strconv.FormatFloat(result, 'f', -1, 64), nil
	})
	return result, err
}

func (s *SQLiteStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var result int64
	_, err := s.incr(ctx, key, ttl, func(cur string) (string, error) {
		var v int64
		if cur != "" {
			parsed, err := strconv.ParseInt(cur, 10, 64)
			if err != nil {
				return "", fmt.Errorf("value at %q is not an integer: %w", key, err)
			}
			v = parsed
		}
		result = v + 1
		return strconv.FormatInt(result, 10), nil
	})
	return result, err
}

func (s *SQLiteStore) Push(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UnixMilli()
	// Drop an expired list before appending, as Redis would have.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv_lists WHERE key = ? AND expires_at != 0 AND expires_at <= ?`, key, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv_lists (key, value, expires_at) VALUES (?, ?, 0)`, key, value); err != nil {
		return err
	}
	if maxLen > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM kv_lists WHERE key = ? AND id NOT IN (
				SELECT id FROM kv_lists WHERE key = ? ORDER BY id DESC LIMIT ?
			)`, key, key, maxLen); err != nil {
			return err
		}
	}
	if ttl > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE kv_lists SET expires_at = ? WHERE key = ?`, s.expiry(ttl), key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Range(ctx context.Context, key string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM kv_lists
		WHERE key = ? AND (expires_at = 0 OR expires_at > ?)
		ORDER BY id`, key, s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/pingcap/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists region rows in a SQLite database so a region server
// keeps its catalog across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Annotate(err, "create database directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Annotate(err, "open sqlite database")
	}
	// database/sql pools connections; one writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS rows (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Annotatef(err, "apply %q", stmt)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM rows WHERE key = ?`, key).Scan(&value)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *SQLiteStore) Put(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO rows (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Trace(err)
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM rows WHERE key = ?`, key)
	return errors.Trace(err)
}

func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM rows ORDER BY key`)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Trace(err)
		}
		keys = append(keys, key)
	}
	return keys, errors.Trace(rows.Err())
}

func (s *SQLiteStore) Stats() (StoreStats, error) {
	var stats StoreStats
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM rows`).
		Scan(&stats.Keys, &stats.Bytes)
	return stats, errors.Trace(err)
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Package metadata records uploaded-file metadata in a local SQLite database.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for the given key.
var ErrNotFound = errors.New("file record not found")

// FileRecord is one uploaded dataset's metadata.
type FileRecord struct {
	Key        string    `json:"file_key"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	CleanedKey string    `json:"cleaned_key,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store wraps the SQLite database holding file records.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	key         TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	rows        INTEGER NOT NULL,
	columns     INTEGER NOT NULL,
	cleaned_key TEXT NOT NULL DEFAULT '',
	uploaded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at DESC);
`

// Open initializes the database at path, creating the directory and schema
// as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir metadata dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put inserts or replaces the record for rec.Key.
func (s *Store) Put(ctx context.Context, rec FileRecord) error {
	if rec.Key == "" {
		return errors.New("record key is required")
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files(key, filename, size_bytes, rows, columns, cleaned_key, uploaded_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			filename=excluded.filename,
			size_bytes=excluded.size_bytes,
			rows=excluded.rows,
			columns=excluded.columns,
			cleaned_key=excluded.cleaned_key,
			uploaded_at=excluded.uploaded_at`,
		rec.Key, rec.Filename, rec.SizeBytes, rec.Rows, rec.Columns, rec.CleanedKey, rec.UploadedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.Key, err)
	}
	return nil
}

// SetCleanedKey links a cleaned object to an existing record.
func (s *Store) SetCleanedKey(ctx context.Context, key, cleanedKey string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE files SET cleaned_key=? WHERE key=?`, cleanedKey, key)
	if err != nil {
		return fmt.Errorf("set cleaned key %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, filename, size_bytes, rows, columns, cleaned_key, uploaded_at
		FROM files WHERE key=?`, key)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record %s: %w", key, err)
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, filename, size_bytes, rows, columns, cleaned_key, uploaded_at
		FROM files ORDER BY uploaded_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var out []FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Delete removes the record for key. Missing keys report ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE key=?`, key)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*FileRecord, error) {
	var rec FileRecord
	var ts int64
	if err := row.Scan(&rec.Key, &rec.Filename, &rec.SizeBytes, &rec.Rows, &rec.Columns, &rec.CleanedKey, &ts); err != nil {
		return nil, err
	}
	rec.UploadedAt = time.UnixMilli(ts)
	return &rec, nil
}

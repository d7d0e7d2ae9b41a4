package austrianelevation

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
)

// A SQLiteStore stores row files in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dsn, creating the row_files table if
// needed.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS row_files (
			tile_database INTEGER NOT NULL,
			y INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (tile_database, y)
		);
	`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) HasRow(ctx context.Context, key RowKey) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM row_files WHERE tile_database = ? AND y = ?);",
		key.Database, key.Y,
	).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *SQLiteStore) ReadRow(ctx context.Context, key RowKey) ([]byte, error) {
	var data []byte
	switch err := s.db.QueryRowContext(ctx,
		"SELECT data FROM row_files WHERE tile_database = ? AND y = ?;",
		key.Database, key.Y,
	).Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fs.ErrNotExist
	case err != nil:
		return nil, err
	default:
		return data, nil
	}
}

// WriteRow stores data for key. An already stored row is left unchanged.
func (s *SQLiteStore) WriteRow(ctx context.Context, key RowKey, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO row_files (tile_database, y, data) VALUES (?, ?, ?);",
		key.Database, key.Y, data,
	)
	return err
}

package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite keeps images in a single table of the pure Go sqlite driver.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	schema := `CREATE TABLE IF NOT EXISTS images (
        isic_id TEXT PRIMARY KEY,
        data BLOB NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM images WHERE isic_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLite) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO images(isic_id, data) VALUES(?, ?)`, id, data)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Package archive stores training images keyed by their isic_id and serves
// them by random access.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("image not found in archive")

type Archive interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, id string, data []byte) error
	Close() error
}

// Open selects a backend from the dsn. "sqlite://path" and "leveldb://path"
// pick explicitly; otherwise .db, .sqlite and .sqlite3 files use SQLite and
// anything else is treated as a LevelDB directory.
func Open(dsn string) (Archive, error) {
	sqlite := false
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		dsn, sqlite = strings.TrimPrefix(dsn, "sqlite://"), true
	case strings.HasPrefix(dsn, "leveldb://"):
		dsn = strings.TrimPrefix(dsn, "leveldb://")
	default:
		switch strings.ToLower(filepath.Ext(dsn)) {
		case ".db", ".sqlite", ".sqlite3":
			sqlite = true
		}
	}

	if sqlite {
		s, err := OpenSQLite(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite archive %s: %w", dsn, err)
		}
		return s, nil
	}
	l, err := OpenLevelDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb archive %s: %w", dsn, err)
	}
	return l, nil
}

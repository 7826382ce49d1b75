package tasks

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shaharia-lab/cate/observability"
)

// NewSQLiteStorage creates the tasks table in db if needed and returns a
// storage backed by it. db must use the sqlite3 driver.
func NewSQLiteStorage(ctx context.Context, db *sql.DB, logger observability.Logger) (*SQLStorage, error) {
	return newSQLStorage(ctx, db, sqliteDialect, logger)
}

// OpenSQLiteStorage opens the SQLite database file at path.
func OpenSQLiteStorage(ctx context.Context, path string, logger observability.Logger) (*SQLStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %s: %w", path, err)
	}

	return NewSQLiteStorage(ctx, db, logger)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"gitclauder/pkg/queue"

	_ "modernc.org/sqlite"
)

// openDB opens a SQLite database at path and enforces production-safe
// defaults: WAL journal mode and a 5-second busy timeout. It also calls
// db.PingContext to verify the connection is usable before returning.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// openQueueDB creates the queue database's directory if needed, opens it and
// applies the schema. Init is idempotent, so every command can call this.
func openQueueDB(ctx context.Context, path string) (*sql.DB, *queue.SQLiteQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create queue dir: %w", err)
	}
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	q := queue.NewSQLiteQueue(db)
	if err := q.Init(ctx, false); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, q, nil
}

package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the daemon database at path and applies
// the schema. WAL mode keeps ledger appends from blocking status reads; the
// busy timeout covers what write contention remains.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	for _, pragma := range []string{
		"journal_mode=WAL",
		"foreign_keys=ON",
		"busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, "PRAGMA "+pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s on %s: %w", pragma, path, err)
		}
	}

	if err := migrate(ctx, db, schemaSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// migrate executes schema one statement at a time. Every statement is
// IF NOT EXISTS, so reapplying the full schema on startup is a no-op for an
// existing database.
func migrate(ctx context.Context, db *sql.DB, schema string) error {
	for _, raw := range strings.Split(schema, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", stmt, err)
		}
	}
	return nil
}

// Package testutil provides shared fixtures for sqlite-backed tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/modforge/moduled/internal/state"
)

// OpenTestDB opens a fully migrated database in a per-test temp directory.
// The returned close func is safe to hand to t.Cleanup.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "moduled.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return db, func() { _ = db.Close() }
}

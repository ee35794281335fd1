package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/banshee-data/groundflat/internal/db"
)

// setupLedgerTestDB opens a migrated ledger in a temporary directory.
// The schema comes from the embedded migrations so tests never drift from
// what NewDB applies in production.
func setupLedgerTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ledger, err := db.NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	return ledger.DB
}

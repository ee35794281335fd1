package main

import (
	"fmt"
	"io"

	"github.com/banshee-data/groundflat/internal/db"
	"github.com/banshee-data/groundflat/internal/monitoring"
)

// Ledger schema actions accepted by -migrate.
const (
	migrateUp     = "up"
	migrateDown   = "down"
	migrateStatus = "status"
)

// runMigrate applies one schema action to the ledger at path and prints the
// resulting version.
func runMigrate(stdout io.Writer, path, action string) error {
	if path == "" {
		return fmt.Errorf("-migrate needs a ledger path from -db or db_path")
	}
	migrations := db.MigrationsFS()
	latest, err := db.LatestMigrationVersion(migrations)
	if err != nil {
		return err
	}

	ledger, err := db.OpenDB(path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	switch action {
	case migrateUp:
		monitoring.Logf("Running ledger migrations...")
		if err := ledger.MigrateUp(migrations); err != nil {
			return err
		}
	case migrateDown:
		monitoring.Logf("Rolling back one ledger migration...")
		if err := ledger.MigrateDown(migrations); err != nil {
			return err
		}
	case migrateStatus:
	default:
		return fmt.Errorf("unknown -migrate action %q (want up, down or status)", action)
	}

	version, dirty, err := ledger.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("read ledger version: %w", err)
	}
	fmt.Fprintf(stdout, "Ledger schema version %d of %d (dirty: %v)\n", version, latest, dirty)
	if dirty {
		monitoring.Warnf("Ledger %s is dirty: a migration stopped part way", path)
	}
	return nil
}

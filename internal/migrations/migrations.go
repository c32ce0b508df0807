package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"
)

//go:embed *.sql
var MigrationFiles embed.FS

// RunMigrations brings the bucket tables to the latest schema version.
// If autoMigrate is false, it only reports the current version; the adapter's
// schema validation then decides whether startup can proceed.
func RunMigrations(db *sql.DB, autoMigrate bool) (err error) {
	sourceDriver, err := iofs.New(MigrationFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		// db stays open for the adapter; only the source is closed here.
		if srcErr := sourceDriver.Close(); srcErr != nil {
			err = multierr.Append(err, fmt.Errorf("close migration source: %w", srcErr))
		}
	}()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		// The bucket schema statements are idempotent.
		slog.Warn("Bucket schema is in dirty state - migration was interrupted",
			"version", version,
			"action", "forcing previous version and re-applying",
		)
		prev := int(version) - 1
		if prev < 1 {
			prev = -1 // nil version
		}
		if err := m.Force(prev); err != nil {
			return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
		}
	}

	if !autoMigrate {
		slog.Info("Auto-migration disabled, skipping migrations",
			"current_version", version,
			"dirty", dirty,
		)
		return nil
	}

	slog.Info("Running bucket schema migrations", "current_version", version)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("Bucket schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get updated migration version: %w", err)
	}

	slog.Info("Bucket schema migrations completed",
		"from_version", version,
		"to_version", newVersion,
	)
	return nil
}

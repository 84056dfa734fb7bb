// Package migrations manages the catalog schema with embedded per-dialect
// SQL migration files.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationFiles embed.FS

// Dialect selects which migration directory and database driver apply.
type Dialect string

const (
	// DialectSQLite applies the sqlite/ migration files.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres applies the postgres/ migration files.
	DialectPostgres Dialect = "postgres"
)

// Up brings the database schema to the latest version. A database already at
// the latest version is not an error.
func Up(db *sql.DB, dialect Dialect) error {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	// m is not closed here: closing it would close the db connection,
	// which the caller owns.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB, dialect Dialect) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	var dbDriver database.Driver
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite3"
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case DialectPostgres:
		driverName = "postgres"
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("creating database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driverName, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, err
	}
	return m, nil
}

package metadata

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"crepo/internal/metadata/migrations"
)

// NewSQLiteStore opens a SQLite-backed metadata store and applies pending
// migrations. path can be a file path or ":memory:" for an in-memory
// database.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := OpenSQLiteConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db, migrations.EngineSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite database: %w", err)
	}
	return newSQLStore(db, "sqlite", isSQLiteUniqueViolation), nil
}

// OpenSQLiteConnection opens and configures a SQLite connection with
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection without the store wrapper.
func OpenSQLiteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so the pool is pinned to a single connection. This also
	// sidesteps SQLITE_BUSY under concurrent writers for file databases.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// isSQLiteUniqueViolation reports whether err is a UNIQUE constraint
// violation.
func isSQLiteUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint &&
			serr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

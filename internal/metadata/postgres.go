package metadata

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"crepo/internal/metadata/migrations"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// NewPostgresStore opens a PostgreSQL-backed metadata store and applies
// pending migrations.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.MigrateUp(db, migrations.EnginePostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating postgres database: %w", err)
	}
	return newSQLStore(db, "postgres", isPostgresUniqueViolation), nil
}

// isPostgresUniqueViolation reports whether err is a unique constraint
// violation.
func isPostgresUniqueViolation(err error) bool {
	var perr *pgconn.PgError
	return errors.As(err, &perr) && perr.Code == pgUniqueViolation
}

package sqlite

import (
	"database/sql"
	_ "embed"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the version recorded after the embedded schema is applied
const SchemaVersion = 1

// Migrator manages database schema migrations
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new database migrator
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Migrate applies the embedded schema once and records it in schema_migrations
func (m *Migrator) Migrate() error {
	if err := m.ensureMigrationsTable(); err != nil {
		return goerr.Wrap(err, "failed to create migrations table")
	}

	applied, err := m.isApplied(SchemaVersion)
	if err != nil {
		return goerr.Wrap(err, "failed to check schema version")
	}
	if applied {
		return nil
	}

	if err := m.applySchema(SchemaVersion, schemaSQL); err != nil {
		return goerr.Wrap(err, "failed to apply schema", goerr.V("version", SchemaVersion))
	}
	return nil
}

func (m *Migrator) ensureMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`)
	return err
}

func (m *Migrator) isApplied(version int) (bool, error) {
	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *Migrator) applySchema(version int, schema string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range splitSQLStatements(schema) {
		if _, err := tx.Exec(stmt); err != nil {
			return goerr.Wrap(err, "failed to execute statement", goerr.V("index", i), goerr.V("statement", stmt))
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		version, "initial schema",
	); err != nil {
		return goerr.Wrap(err, "failed to record migration")
	}

	return tx.Commit()
}

// splitSQLStatements drops comment lines and splits on semicolons
func splitSQLStatements(sql string) []string {
	var clean []string
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		clean = append(clean, line)
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(clean, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

// Version returns the highest applied schema version, 0 when none
func (m *Migrator) Version() (int, error) {
	var version sql.NullInt64
	if err := m.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

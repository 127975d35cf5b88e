package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultRuleTable is the table read by the SQL dictionary source.
const DefaultRuleTable = "entity_rules"

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens a database for the given driver ("sqlite" or "postgres").
func Open(driver, dsn string, maxOpenConns int) (*sql.DB, error) {
	var sqlDriver string
	switch driver {
	case "sqlite", "sqlite3":
		sqlDriver = "sqlite3"
	case "postgres", "postgresql":
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

// Migrate creates the rule table and its unique index if they do not exist.
// The DDL is portable between SQLite and Postgres.
func Migrate(ctx context.Context, db DB, table string) error {
	if table == "" {
		table = DefaultRuleTable
	}
	if !ValidTableName(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			entity TEXT NOT NULL,
			attribute_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_tenant_entity_idx ON %s (tenant_id, entity)`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}

// ValidTableName reports whether name is safe to interpolate as a table identifier.
func ValidTableName(name string) bool {
	return tableNameRE.MatchString(name)
}

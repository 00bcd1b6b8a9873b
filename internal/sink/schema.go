// Package sink loads generated trajectory tables into a SQL database.
// SQLite (modernc.org/sqlite) and Postgres (pgx) are supported.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// timeLayout is fixed-width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect struct {
	name   string
	driver string
	real   string
	bigint string
	// numbered placeholders ($1) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", real: "REAL", bigint: "INTEGER"}
	postgresDialect = dialect{name: "postgres", driver: "pgx", real: "DOUBLE PRECISION", bigint: "BIGINT", numbered: true}
)

// placeholders returns n comma-separated bind parameters.
func (d dialect) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		if d.numbered {
			ps[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}

// schemaV1 returns the statements creating the initial schema. The seed is
// stored as text because it spans the full uint64 range.
func (d dialect) schemaV1() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    seed TEXT NOT NULL,
    subjects INTEGER NOT NULL,
    days INTEGER NOT NULL,
    row_count ` + d.bigint + ` NOT NULL,
    checksum TEXT
)`,
		`CREATE TABLE IF NOT EXISTS day_records (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    subject_id INTEGER NOT NULL,
    day INTEGER NOT NULL,
    sleep_hours ` + d.real + ` NOT NULL,
    stress_level ` + d.real + ` NOT NULL,
    activity_minutes ` + d.real + ` NOT NULL,
    junk_food_score ` + d.real + ` NOT NULL,
    alcohol_units ` + d.real + ` NOT NULL,
    inflammation_index ` + d.real + ` NOT NULL,
    immune_load ` + d.real + ` NOT NULL,
    hormonal_disruption ` + d.real + ` NOT NULL,
    oxidative_stress ` + d.real + ` NOT NULL,
    PRIMARY KEY (run_id, subject_id, day)
)`,
		`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	}
}

// InitSchema creates the schema when the database has none, or has an
// unstamped schema_version table, and refuses schemas newer than SchemaVersion.
func InitSchema(ctx context.Context, db *sql.DB, d dialect) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db, d); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	switch {
	case currentVersion > SchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	case currentVersion == 0:
		// schema_version exists but was never stamped; tables may be missing.
		if err := createSchema(ctx, db, d); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func createSchema(ctx context.Context, db *sql.DB, d dialect) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range d.schemaV1() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (`+d.placeholders(2)+`)`,
		SchemaVersion, time.Now().UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

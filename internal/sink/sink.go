package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/lifesim/internal/trajectory"
)

// ErrUnknownDriver is returned by Open for drivers other than sqlite and postgres.
var ErrUnknownDriver = errors.New("unknown sink driver")

// Run describes one generator run stored alongside its rows.
type Run struct {
	ID        string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Seed      uint64    `json:"seed"`
	Subjects  int       `json:"subjects"`
	Days      int       `json:"days"`
	Rows      int64     `json:"rows"`
	Checksum  string    `json:"checksum,omitempty"`
}

// NewRunID derives a run identifier from the start time, at microsecond
// resolution, and the seed.
func NewRunID(start time.Time, seed uint64) string {
	return start.UTC().Format("20060102T150405.000000Z") + "-" + strconv.FormatUint(seed, 10)
}

// Sink writes trajectory tables to a SQL database.
type Sink struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database and ensures the schema exists. driver is
// "sqlite" (dsn is a file path) or "postgres" (dsn is a pgx connection string).
func Open(ctx context.Context, driver, dsn string) (*Sink, error) {
	var d dialect
	source := dsn
	switch driver {
	case "sqlite":
		d = sqliteDialect
		source = dsn + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case "postgres", "postgresql", "pgx":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}
	if d == sqliteDialect {
		db.SetMaxOpenConns(1) // SQLite works best with single writer
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}
	if err := InitSchema(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Sink{db: db, dialect: d}, nil
}

// Driver returns the dialect name ("sqlite" or "postgres").
func (s *Sink) Driver() string { return s.dialect.name }

// Close closes the database handle.
func (s *Sink) Close() error { return s.db.Close() }

// Load inserts the run and all of its records in a single transaction.
// Run.Rows is set from recs. A run ID that already exists is an error.
func (s *Sink) Load(ctx context.Context, run Run, recs []trajectory.DayRecord) error {
	run.Rows = int64(len(recs))
	if s.dialect.numbered {
		return s.loadPostgres(ctx, run, recs)
	}
	return s.loadSQLite(ctx, run, recs)
}

func (s *Sink) insertRunSQL() string {
	return `INSERT INTO runs (run_id, created_at, seed, subjects, days, row_count, checksum) VALUES (` +
		s.dialect.placeholders(7) + `)`
}

func runArgs(run Run) []any {
	return []any{
		run.ID,
		run.CreatedAt.UTC().Format(timeLayout),
		strconv.FormatUint(run.Seed, 10),
		run.Subjects,
		run.Days,
		run.Rows,
		run.Checksum,
	}
}

func recordArgs(runID string, r trajectory.DayRecord) []any {
	return []any{
		runID, r.SubjectID, r.Day,
		r.SleepHours, r.StressLevel, r.ActivityMinutes, r.JunkFoodScore, r.AlcoholUnits,
		r.InflammationIndex, r.ImmuneLoad, r.HormonalDisruption, r.OxidativeStress,
	}
}

// recordColumns is run_id followed by the table columns.
var recordColumns = append([]string{"run_id"}, trajectory.Columns...)

func (s *Sink) loadSQLite(ctx context.Context, run Run, recs []trajectory.DayRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.insertRunSQL(), runArgs(run)...); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO day_records (`+strings.Join(recordColumns, ", ")+`) VALUES (`+
			s.dialect.placeholders(len(recordColumns))+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range recs {
		if _, err := stmt.ExecContext(ctx, recordArgs(run.ID, r)...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// loadPostgres drops to the underlying pgx connection for COPY, which is
// orders of magnitude faster than row inserts for large tables.
func (s *Sink) loadPostgres(ctx context.Context, run Run, recs []trajectory.DayRecord) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		pc := sc.Conn()

		tx, err := pc.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, s.insertRunSQL(), runArgs(run)...); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{"day_records"}, recordColumns,
			pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
				return recordArgs(run.ID, recs[i]), nil
			}))
		if err != nil {
			return fmt.Errorf("failed to copy rows: %w", err)
		}
		if n != int64(len(recs)) {
			return fmt.Errorf("copied %d rows, expected %d", n, len(recs))
		}

		return tx.Commit(ctx)
	})
}

// Runs lists stored runs, newest first.
func (s *Sink) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at, seed, subjects, days, row_count, checksum FROM runs ORDER BY created_at DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			created  string
			seed     string
			checksum sql.NullString
		)
		if err := rows.Scan(&r.ID, &created, &seed, &r.Subjects, &r.Days, &r.Rows, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, created, err)
		}
		if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("run %s: bad seed %q: %w", r.ID, seed, err)
		}
		r.Checksum = checksum.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Records returns a run's rows in subject-major, day-minor order.
func (s *Sink) Records(ctx context.Context, runID string) ([]trajectory.DayRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(trajectory.Columns, ", ")+` FROM day_records WHERE run_id = `+
			s.dialect.placeholders(1)+` ORDER BY subject_id, day`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var recs []trajectory.DayRecord
	for rows.Next() {
		var r trajectory.DayRecord
		if err := rows.Scan(&r.SubjectID, &r.Day,
			&r.SleepHours, &r.StressLevel, &r.ActivityMinutes, &r.JunkFoodScore, &r.AlcoholUnits,
			&r.InflammationIndex, &r.ImmuneLoad, &r.HormonalDisruption, &r.OxidativeStress); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// DeleteRun removes a run and its rows.
func (s *Sink) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	arg := s.dialect.placeholders(1)
	if _, err := tx.ExecContext(ctx, `DELETE FROM day_records WHERE run_id = `+arg, runID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = `+arg, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return tx.Commit()
}

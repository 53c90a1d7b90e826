package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	experiment_id TEXT NOT NULL,
	model_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	row_index INTEGER NOT NULL,
	column_name TEXT NOT NULL,
	value TEXT,
	absent BOOLEAN NOT NULL,
	reason TEXT,
	created_at TIMESTAMP NOT NULL
)`

// SQLConfig configures the SQL sink.
type SQLConfig struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// SQLSink stores tables in long format: one row per cell.
type SQLSink struct {
	db     *sql.DB
	driver string
	insert string
	now    func() time.Time
}

// OpenSQLSink connects, pings and creates the results table.
func OpenSQLSink(ctx context.Context, cfg SQLConfig) (*SQLSink, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverSQLite, DriverPostgres:
	case "sqlite3":
		driver = DriverSQLite
	case "postgresql", "pg":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("sql sink: unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, errors.New("sql sink: dsn is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewSQLSink(db, driver)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB, driver string) *SQLSink {
	return &SQLSink{
		db:     db,
		driver: driver,
		insert: insertStatement(driver),
		now:    time.Now,
	}
}

func insertStatement(driver string) string {
	placeholders := make([]string, 11)
	for i := range placeholders {
		if driver == DriverPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return "INSERT INTO results (id, run_id, experiment_id, model_id, iteration, row_index, column_name, value, absent, reason, created_at) VALUES (" +
		strings.Join(placeholders, ", ") + ")"
}

// Name implements Sink.
func (s *SQLSink) Name() string { return "sql" }

// Migrate creates the results table when missing.
func (s *SQLSink) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createResultsTable); err != nil {
		return fmt.Errorf("create results table: %w", err)
	}
	return nil
}

// Write implements Sink. The table is stored in a single transaction.
func (s *SQLSink) Write(ctx context.Context, target Target, table *Table) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := target.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	columns := table.Columns()
	for i := 0; i < table.Len(); i++ {
		for _, col := range columns {
			cell := table.Cell(i, col)
			var value, reason any
			if cell.IsPresent() {
				value = cell.String()
			} else {
				reason = cell.Reason().Error()
			}
			if _, err = stmt.ExecContext(ctx,
				uuid.NewString(),
				target.RunID,
				target.ExperimentID,
				target.ModelID,
				target.Iteration,
				i,
				col,
				value,
				!cell.IsPresent(),
				reason,
				createdAt,
			); err != nil {
				return fmt.Errorf("insert row %d column %q: %w", i, col, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *SQLSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

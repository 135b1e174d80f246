package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Dialect is the SQL flavour of the underlying database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ErrTxConflict is returned when the database aborts a transaction because of
// a concurrent writer. The caller may retry.
var ErrTxConflict = errors.New("transaction conflict")

// DB wraps sql.DB for the booking store.
type DB struct {
	*sql.DB
	dialect Dialect
	path    string
	logger  *zerolog.Logger
	tracer  trace.Tracer
}

// Options describes how to open the database.
type Options struct {
	Driver       string
	Path         string // sqlite3
	DSN          string // postgres
	MaxOpenConns int
}

// NewDB opens the SQLite database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return Open(Options{Driver: string(DialectSQLite), Path: path}, logger)
}

// Open connects to the configured database and runs migrations.
func Open(opts Options, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	var (
		dialect Dialect
		dsn     string
	)
	switch opts.Driver {
	case "", string(DialectSQLite):
		dialect = DialectSQLite
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		// WAL, busy timeout and BEGIN IMMEDIATE so every transaction holds the
		// write lock from its first read.
		dsn = opts.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	case string(DialectPostgres):
		dialect = DialectPostgres
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	instance := &DB{
		DB:      sqlDB,
		dialect: dialect,
		path:    opts.Path,
		logger:  logger,
		tracer:  otel.Tracer("ovenbook/db"),
	}

	if err := instance.createTables(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("driver", string(dialect)).Msg("Database initialized")
	return instance, nil
}

// Dialect returns the SQL flavour in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Path returns the SQLite file path, empty for PostgreSQL.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck pings the database; used by the readiness probe.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) createTables(ctx context.Context) error {
	types := strings.NewReplacer(
		"{{SERIAL}}", db.pick("INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY"),
		"{{TS}}", db.pick("DATETIME", "TIMESTAMPTZ"),
		"{{BIGINT}}", db.pick("INTEGER", "BIGINT"),
	)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS ovens (
			id {{SERIAL}},
			name TEXT UNIQUE NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'AVAILABLE',
			max_temp INTEGER NOT NULL CHECK (max_temp > 0),
			created_at {{TS}} NOT NULL,
			updated_at {{TS}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'USER',
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at {{TS}} NOT NULL,
			updated_at {{TS}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			oven_id {{BIGINT}} NOT NULL REFERENCES ovens(id),
			start_date {{TS}} NOT NULL,
			end_date {{TS}} NOT NULL,
			purpose TEXT NOT NULL,
			usage_temp INTEGER NOT NULL,
			flap INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at {{TS}} NOT NULL,
			updated_at {{TS}} NOT NULL,
			cancelled_at {{TS}},
			cancelled_by TEXT,
			cancel_reason TEXT,
			deleted_at {{TS}},
			deleted_by TEXT,
			CHECK (end_date > start_date)
		)`,
		`CREATE TABLE IF NOT EXISTS booking_events (
			seq {{SERIAL}},
			id TEXT UNIQUE NOT NULL,
			booking_id TEXT NOT NULL REFERENCES bookings(id),
			actor_id TEXT,
			actor_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			payload TEXT,
			created_at {{TS}} NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_oven_status ON bookings(oven_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_owner_status ON bookings(owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_end ON bookings(status, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_events_booking ON booking_events(booking_id, seq)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, types.Replace(query)); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) pick(sqlite, postgres string) string {
	if db.dialect == DialectPostgres {
		return postgres
	}
	return sqlite
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqliteTimeLayout is fixed-width so that stored values compare correctly as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// ts converts a time into the driver argument for a timestamp column.
func (db *DB) ts(t time.Time) any {
	if db.dialect == DialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func (db *DB) nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return db.ts(*t)
}

// classify maps driver-level concurrency failures to ErrTxConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}
	}
	return err
}

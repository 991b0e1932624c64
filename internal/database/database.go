package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/open2e/open2e/internal/database/migrations"
)

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// DB wraps the database connection of one logical database.
type DB struct {
	conn   *sql.DB
	name   string
	path   string
	logger zerolog.Logger
}

// New opens the SQLite database at path with WAL mode and foreign keys.
func New(name, path string, logger zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", name, err)
	}

	return &DB{
		conn:   conn,
		name:   name,
		path:   path,
		logger: logger.With().Str("component", "database").Str("db", name).Logger(),
	}, nil
}

// Name returns the logical database name.
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Migrate applies the pending migrations of list in ascending order.
// Versions at or below the recorded one are skipped, so running it again
// is a no-op.
func (db *DB) Migrate(ctx context.Context, list []migrations.Migration) error {
	if err := migrations.Validate(list); err != nil {
		return fmt.Errorf("invalid migrations for %s: %w", db.name, err)
	}
	dir, err := migrations.Dir(list)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS())
	goose.SetLogger(gooseLogger{db.logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	before, err := goose.GetDBVersionContext(ctx, db.conn)
	if err != nil {
		return fmt.Errorf("failed to read schema version of %s: %w", db.name, err)
	}

	if err := goose.UpContext(ctx, db.conn, dir); err != nil {
		return fmt.Errorf("failed to run migrations for %s: %w", db.name, err)
	}

	after, err := goose.GetDBVersionContext(ctx, db.conn)
	if err != nil {
		return fmt.Errorf("failed to read schema version of %s: %w", db.name, err)
	}

	db.logger.Info().Int64("from", before).Int64("to", after).Msg("database migrated")
	return nil
}

// Version returns the highest applied migration version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db.conn)
}

// Checkpoint truncates the WAL file and refreshes query planner statistics.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint %s: %w", db.name, err)
	}
	if _, err := db.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize %s: %w", db.name, err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"

	"github.com/open2e/open2e/internal/database"
	"github.com/open2e/open2e/internal/database/migrations"
)

// TestDB wraps migrated test databases.
type TestDB struct {
	Manager *database.Manager
	Dir     string
	Logger  zerolog.Logger
}

// NewTestDB opens main.db and chat.db in a temp directory and migrates
// them. The databases are closed when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dir := t.TempDir()
	logger := NewTestLogger(t)

	manager, err := database.NewManager(dir, logger)
	if err != nil {
		t.Fatalf("Failed to create database manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	if err := manager.MigrateAll(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDB{
		Manager: manager,
		Dir:     dir,
		Logger:  logger,
	}
}

// Main returns the main.db connection.
func (tdb *TestDB) Main(t *testing.T) *sql.DB {
	t.Helper()
	return tdb.conn(t, migrations.DatabaseMain)
}

// Chat returns the chat.db connection.
func (tdb *TestDB) Chat(t *testing.T) *sql.DB {
	t.Helper()
	return tdb.conn(t, migrations.DatabaseChat)
}

func (tdb *TestDB) conn(t *testing.T, name string) *sql.DB {
	conn, err := tdb.Manager.Conn(name)
	if err != nil {
		t.Fatalf("Failed to get %s connection: %v", name, err)
	}
	return conn
}

// NewTestLogger creates a test logger that outputs to t.Log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

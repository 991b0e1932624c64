package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/open2e/open2e/internal/database/migrations"
)

// ErrUnknownDatabase is returned for names outside the migration registry.
var ErrUnknownDatabase = migrations.ErrUnknownDatabase

// Manager owns the connections of every logical database (main, chat),
// each stored as <name>.db in one directory.
type Manager struct {
	dir    string
	dbs    map[string]*DB
	order  []string
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewManager opens every database listed by migrations.Databases under dir.
// On failure the databases already opened are closed again.
func NewManager(dir string, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		dir:    dir,
		dbs:    make(map[string]*DB),
		logger: logger.With().Str("component", "database").Logger(),
	}

	for _, name := range migrations.Databases() {
		db, err := New(name, filepath.Join(dir, name+".db"), logger)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.dbs[name] = db
		m.order = append(m.order, name)
	}

	return m, nil
}

// Dir returns the directory holding the database files.
func (m *Manager) Dir() string {
	return m.dir
}

// Names returns the logical database names in open order.
func (m *Manager) Names() []string {
	return append([]string(nil), m.order...)
}

// Get returns the named database.
func (m *Manager) Get(name string) (*DB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	db, ok := m.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}
	return db, nil
}

// Conn returns the connection of the named database.
func (m *Manager) Conn(name string) (*sql.DB, error) {
	db, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return db.Conn(), nil
}

// MigrateAll applies each database's registered migrations. It stops at
// the first failure.
func (m *Manager) MigrateAll(ctx context.Context) error {
	for _, name := range m.order {
		list, err := migrations.For(name)
		if err != nil {
			return err
		}
		db, err := m.Get(name)
		if err != nil {
			return err
		}
		if err := db.Migrate(ctx, list); err != nil {
			return err
		}
	}
	return nil
}

// Versions returns the applied schema version of every database.
func (m *Manager) Versions(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(m.order))
	for _, name := range m.order {
		db, err := m.Get(name)
		if err != nil {
			return nil, err
		}
		v, err := db.Version(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema version of %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// Checkpoint runs WAL checkpoint and optimize on every database.
func (m *Manager) Checkpoint(ctx context.Context) error {
	var errs []error
	for _, name := range m.order {
		db, err := m.Get(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := db.Checkpoint(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every database connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, db := range m.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	m.dbs = map[string]*DB{}
	return errors.Join(errs...)
}

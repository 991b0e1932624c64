// Package sqlbridge runs the UI's SQL statements against the application
// databases.
package sqlbridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrEmptyQuery = errors.New("query is empty")

// Connector resolves a logical database name to its connection.
type Connector interface {
	Conn(name string) (*sql.DB, error)
}

// Result is the outcome of Execute.
type Result struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}

// Service passes statements through to SQLite. Placeholders are handed to
// the driver as written, so both ? and $1 work.
type Service struct {
	dbs    Connector
	logger zerolog.Logger
}

// NewService creates a bridge over dbs.
func NewService(dbs Connector, logger zerolog.Logger) *Service {
	return &Service{
		dbs:    dbs,
		logger: logger.With().Str("component", "sqlbridge").Logger(),
	}
}

// NormalizeName accepts "main", "main.db" and "sqlite:main.db".
func NormalizeName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "sqlite:")
	return strings.TrimSuffix(name, ".db")
}

// Select runs query and returns each row as a column -> value map.
func (s *Service) Select(ctx context.Context, db, query string, values []any) ([]map[string]any, error) {
	conn, err := s.conn(db, query)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("select on %s: %w", db, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		raw := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select on %s: %w", db, err)
	}

	s.logger.Debug().Str("db", db).Int("rows", len(out)).Msg("select")
	return out, nil
}

// Execute runs a statement that returns no rows.
func (s *Service) Execute(ctx context.Context, db, query string, values []any) (Result, error) {
	conn, err := s.conn(db, query)
	if err != nil {
		return Result{}, err
	}

	res, err := conn.ExecContext(ctx, query, values...)
	if err != nil {
		return Result{}, fmt.Errorf("execute on %s: %w", db, err)
	}

	var out Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if out.LastInsertID, err = res.LastInsertId(); err != nil {
		return Result{}, fmt.Errorf("failed to read last insert id: %w", err)
	}

	s.logger.Debug().Str("db", db).Int64("rowsAffected", out.RowsAffected).Msg("execute")
	return out, nil
}

func (s *Service) conn(db, query string) (*sql.DB, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return s.dbs.Conn(NormalizeName(db))
}

func convertValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

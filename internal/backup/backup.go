// Package backup exports and restores the user's questions, evaluations,
// rubrics and chat history.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/open2e/open2e/internal/database/migrations"
)

// FormatVersion is written to Metadata.Version.
const FormatVersion = "1.0"

var ErrInvalidBackup = errors.New("invalid backup")

// Connector resolves a logical database name to its connection.
type Connector interface {
	Conn(name string) (*sql.DB, error)
}

type Question struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type Evaluation struct {
	ID            int64    `json:"id"`
	QuestionID    int64    `json:"question_id"`
	RubricID      *int64   `json:"rubric_id"`
	Answer        string   `json:"answer"`
	Score         *int64   `json:"score"`
	Justification *string  `json:"justification"`
	DetectedAI    *float64 `json:"detected_ai"`
	LLMModel      *string  `json:"llm_model"`
	CreatedAt     string   `json:"created_at"`
}

type Rubric struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Content    string  `json:"content"`
	TotalScore int64   `json:"total_score"`
	CreatedBy  string  `json:"created_by"`
	IsArchived Flag    `json:"is_archived"`
	CreatedAt  string  `json:"created_at"`
	ArchivedAt *string `json:"archived_at"`
}

type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Metadata struct {
	Version    string `json:"version"`
	CreatedAt  string `json:"created_at"`
	AppVersion string `json:"app_version,omitempty"`
}

// Data is a complete backup. Nil sections mean the field was missing from
// the file.
type Data struct {
	Questions     []Question     `json:"questions"`
	Evaluations   []Evaluation   `json:"evaluations"`
	Rubrics       []Rubric       `json:"rubrics"`
	Conversations []Conversation `json:"conversations"`
	Messages      []Message      `json:"messages"`
	Metadata      *Metadata      `json:"metadata"`
}

// Flag is a boolean stored as 0/1 in SQLite. It decodes from either a JSON
// boolean or a number.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case bool:
		*f = Flag(val)
	case float64:
		*f = val != 0
	case nil:
		*f = false
	default:
		return fmt.Errorf("is_archived must be a boolean or number, got %s", string(b))
	}
	return nil
}

// Service reads and writes backups.
type Service struct {
	dbs        Connector
	appVersion string
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates a backup service over dbs.
func NewService(dbs Connector, appVersion string, logger zerolog.Logger) *Service {
	return &Service{
		dbs:        dbs,
		appVersion: appVersion,
		logger:     logger.With().Str("component", "backup").Logger(),
		now:        time.Now,
	}
}

// Decode reads a backup document and validates it.
func Decode(r io.Reader) (*Data, error) {
	var data Data
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	if err := Validate(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Encode writes data as indented JSON.
func Encode(w io.Writer, data *Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Validate checks that every section and the metadata are present.
func Validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("%w: backup must contain a JSON object", ErrInvalidBackup)
	}

	sections := []struct {
		name    string
		present bool
	}{
		{"questions", data.Questions != nil},
		{"evaluations", data.Evaluations != nil},
		{"rubrics", data.Rubrics != nil},
		{"conversations", data.Conversations != nil},
		{"messages", data.Messages != nil},
		{"metadata", data.Metadata != nil},
	}
	for _, s := range sections {
		if !s.present {
			return fmt.Errorf("%w: missing required field: %s", ErrInvalidBackup, s.name)
		}
	}

	if data.Metadata.Version == "" || data.Metadata.CreatedAt == "" {
		return fmt.Errorf("%w: invalid metadata structure", ErrInvalidBackup)
	}
	return nil
}

// Export reads every backed-up table.
func (s *Service) Export(ctx context.Context) (*Data, error) {
	mainDB, err := s.dbs.Conn(migrations.DatabaseMain)
	if err != nil {
		return nil, err
	}
	chatDB, err := s.dbs.Conn(migrations.DatabaseChat)
	if err != nil {
		return nil, err
	}

	data := &Data{
		Metadata: &Metadata{
			Version:    FormatVersion,
			CreatedAt:  s.now().UTC().Format(time.RFC3339),
			AppVersion: s.appVersion,
		},
	}

	if data.Questions, err = queryAll(ctx, mainDB, `SELECT id, content FROM question ORDER BY id`,
		func(rows *sql.Rows, q *Question) error {
			return rows.Scan(&q.ID, &q.Content)
		}); err != nil {
		return nil, fmt.Errorf("failed to export questions: %w", err)
	}

	if data.Evaluations, err = queryAll(ctx, mainDB,
		`SELECT id, question_id, rubric_id, answer, score, justification, detected_ai, llm_model, created_at
		 FROM evaluation ORDER BY id`,
		func(rows *sql.Rows, e *Evaluation) error {
			return rows.Scan(&e.ID, &e.QuestionID, &e.RubricID, &e.Answer, &e.Score,
				&e.Justification, &e.DetectedAI, &e.LLMModel, &e.CreatedAt)
		}); err != nil {
		return nil, fmt.Errorf("failed to export evaluations: %w", err)
	}

	if data.Rubrics, err = queryAll(ctx, mainDB,
		`SELECT id, name, content, total_score, created_by, is_archived, created_at, archived_at
		 FROM rubric ORDER BY id`,
		func(rows *sql.Rows, r *Rubric) error {
			var archived bool
			if err := rows.Scan(&r.ID, &r.Name, &r.Content, &r.TotalScore, &r.CreatedBy,
				&archived, &r.CreatedAt, &r.ArchivedAt); err != nil {
				return err
			}
			r.IsArchived = Flag(archived)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to export rubrics: %w", err)
	}

	if data.Conversations, err = queryAll(ctx, chatDB,
		`SELECT id, title, created_at, updated_at FROM conversation ORDER BY created_at`,
		func(rows *sql.Rows, c *Conversation) error {
			return rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
		}); err != nil {
		return nil, fmt.Errorf("failed to export conversations: %w", err)
	}

	if data.Messages, err = queryAll(ctx, chatDB,
		`SELECT id, conversation_id, role, content, status, created_at, updated_at
		 FROM message ORDER BY created_at`,
		func(rows *sql.Rows, m *Message) error {
			return rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Status, &m.CreatedAt, &m.UpdatedAt)
		}); err != nil {
		return nil, fmt.Errorf("failed to export messages: %w", err)
	}

	s.logger.Info().
		Int("questions", len(data.Questions)).
		Int("evaluations", len(data.Evaluations)).
		Int("rubrics", len(data.Rubrics)).
		Int("conversations", len(data.Conversations)).
		Int("messages", len(data.Messages)).
		Msg("backup exported")
	return data, nil
}

// Import replaces the backed-up tables with data. Both databases are
// rewritten inside open transactions that commit only once every row is in;
// children are deleted before parents and parents inserted before children.
func (s *Service) Import(ctx context.Context, data *Data) error {
	if err := Validate(data); err != nil {
		return err
	}

	mainDB, err := s.dbs.Conn(migrations.DatabaseMain)
	if err != nil {
		return err
	}
	chatDB, err := s.dbs.Conn(migrations.DatabaseChat)
	if err != nil {
		return err
	}

	mainTx, err := mainDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", migrations.DatabaseMain, err)
	}
	defer mainTx.Rollback() //nolint:errcheck // no-op after commit

	chatTx, err := chatDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", migrations.DatabaseChat, err)
	}
	defer chatTx.Rollback() //nolint:errcheck // no-op after commit

	if err := importMain(ctx, mainTx, data); err != nil {
		return fmt.Errorf("failed to import %s: %w", migrations.DatabaseMain, err)
	}
	if err := importChat(ctx, chatTx, data); err != nil {
		return fmt.Errorf("failed to import %s: %w", migrations.DatabaseChat, err)
	}

	if err := mainTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", migrations.DatabaseMain, err)
	}
	if err := chatTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", migrations.DatabaseChat, err)
	}

	s.logger.Info().
		Str("backupVersion", data.Metadata.Version).
		Str("backupCreatedAt", data.Metadata.CreatedAt).
		Msg("backup imported")
	return nil
}

func importMain(ctx context.Context, tx *sql.Tx, data *Data) error {
	for _, table := range []string{"evaluation", "question", "rubric"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, r := range data.Rubrics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rubric (id, name, content, total_score, created_by, is_archived, created_at, archived_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.Name, r.Content, r.TotalScore, r.CreatedBy, bool(r.IsArchived), r.CreatedAt, r.ArchivedAt); err != nil {
			return fmt.Errorf("insert rubric %d: %w", r.ID, err)
		}
	}
	for _, q := range data.Questions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO question (id, content) VALUES ($1, $2)`, q.ID, q.Content); err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}
	for _, e := range data.Evaluations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO evaluation (id, question_id, rubric_id, answer, score, justification, detected_ai, llm_model, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.QuestionID, e.RubricID, e.Answer, e.Score, e.Justification, e.DetectedAI, e.LLMModel, e.CreatedAt); err != nil {
			return fmt.Errorf("insert evaluation %d: %w", e.ID, err)
		}
	}
	return nil
}

func importChat(ctx context.Context, tx *sql.Tx, data *Data) error {
	for _, table := range []string{"message", "conversation"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, c := range data.Conversations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			c.ID, c.Title, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
	}
	for _, m := range data.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message (id, conversation_id, role, content, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.ConversationID, m.Role, m.Content, m.Status, m.CreatedAt, m.UpdatedAt); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return nil
}

func queryAll[T any](ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows, *T) error) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var item T
		if err := scan(rows, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

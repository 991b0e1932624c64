package sqlbridge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open2e/open2e/internal/database"
	"github.com/open2e/open2e/internal/sqlbridge"
	"github.com/open2e/open2e/internal/testutil"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "main", sqlbridge.NormalizeName("sqlite:main.db"))
	assert.Equal(t, "main", sqlbridge.NormalizeName("main.db"))
	assert.Equal(t, "chat", sqlbridge.NormalizeName("chat"))
}

func TestService_ExecuteAndSelect(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	svc := sqlbridge.NewService(tdb.Manager, tdb.Logger)
	ctx := context.Background()

	res, err := svc.Execute(ctx, "sqlite:main.db", `INSERT INTO question (content) VALUES ($1)`, []any{"What is photosynthesis?"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Positive(t, res.LastInsertID)

	_, err = svc.Execute(ctx, "main", `INSERT INTO evaluation (question_id, answer, score, detected_ai) VALUES (?, ?, ?, ?)`,
		[]any{res.LastInsertID, "Plants turn light into sugar.", 85, nil})
	require.NoError(t, err)

	rows, err := svc.Select(ctx, "main.db",
		`SELECT q.content AS question, e.answer, e.score, e.detected_ai FROM evaluation e JOIN question q ON q.id = e.question_id`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "What is photosynthesis?", rows[0]["question"])
	assert.Equal(t, "Plants turn light into sugar.", rows[0]["answer"])
	assert.EqualValues(t, 85, rows[0]["score"])
	assert.Nil(t, rows[0]["detected_ai"])
}

func TestService_SelectEmpty(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	svc := sqlbridge.NewService(tdb.Manager, tdb.Logger)

	rows, err := svc.Select(context.Background(), "chat", `SELECT * FROM conversation`, nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestService_BlobAsString(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	svc := sqlbridge.NewService(tdb.Manager, tdb.Logger)

	rows, err := svc.Select(context.Background(), "main", `SELECT CAST('abc' AS BLOB) AS data`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "abc", rows[0]["data"])
}

func TestService_Errors(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	svc := sqlbridge.NewService(tdb.Manager, tdb.Logger)
	ctx := context.Background()

	_, err := svc.Select(ctx, "analytics", `SELECT 1`, nil)
	assert.ErrorIs(t, err, database.ErrUnknownDatabase)

	_, err = svc.Execute(ctx, "main", "  ", nil)
	assert.ErrorIs(t, err, sqlbridge.ErrEmptyQuery)

	_, err = svc.Execute(ctx, "main", `INSERT INTO nope (x) VALUES (1)`, nil)
	assert.Error(t, err)
}

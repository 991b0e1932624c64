package backup_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open2e/open2e/internal/backup"
	"github.com/open2e/open2e/internal/testutil"
)

func seed(t *testing.T, tdb *testutil.TestDB) {
	t.Helper()
	mainDB := tdb.Main(t)
	_, err := mainDB.Exec(`INSERT INTO question (id, content) VALUES (10, 'Explain osmosis.')`)
	require.NoError(t, err)
	_, err = mainDB.Exec(`INSERT INTO evaluation (id, question_id, rubric_id, answer, score, justification, llm_model, created_at)
		VALUES (5, 10, 1, 'Water moves across a membrane.', 70, 'Partially correct', 'gpt-4o', '2025-03-01 10:00:00')`)
	require.NoError(t, err)

	chatDB := tdb.Chat(t)
	_, err = chatDB.Exec(`INSERT INTO conversation (id, title, created_at, updated_at) VALUES ('c1', 'Grading help', '2025-03-01', '2025-03-02')`)
	require.NoError(t, err)
	_, err = chatDB.Exec(`INSERT INTO message (id, conversation_id, role, content, status, created_at, updated_at)
		VALUES ('m1', 'c1', 'user', 'hello', 'complete', '2025-03-01', '2025-03-01')`)
	require.NoError(t, err)
}

func TestExport(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	seed(t, tdb)
	svc := backup.NewService(tdb.Manager, "1.2.3", tdb.Logger)

	data, err := svc.Export(context.Background())
	require.NoError(t, err)

	require.NoError(t, backup.Validate(data))
	assert.Equal(t, backup.FormatVersion, data.Metadata.Version)
	assert.Equal(t, "1.2.3", data.Metadata.AppVersion)
	assert.NotEmpty(t, data.Metadata.CreatedAt)

	require.Len(t, data.Questions, 1)
	assert.Equal(t, "Explain osmosis.", data.Questions[0].Content)

	require.Len(t, data.Evaluations, 1)
	ev := data.Evaluations[0]
	assert.Equal(t, int64(10), ev.QuestionID)
	require.NotNil(t, ev.Score)
	assert.Equal(t, int64(70), *ev.Score)
	assert.Nil(t, ev.DetectedAI)

	// the default rubric seeded by the migrations
	require.Len(t, data.Rubrics, 1)
	assert.Equal(t, "SYSTEM", data.Rubrics[0].CreatedBy)
	assert.False(t, bool(data.Rubrics[0].IsArchived))

	require.Len(t, data.Conversations, 1)
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "c1", data.Messages[0].ConversationID)
}

func TestExportImportRoundTrip(t *testing.T) {
	source := testutil.NewTestDB(t)
	seed(t, source)
	exported, err := backup.NewService(source.Manager, "dev", source.Logger).Export(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, backup.Encode(&buf, exported))
	decoded, err := backup.Decode(&buf)
	require.NoError(t, err)

	target := testutil.NewTestDB(t)
	_, err = target.Main(t).Exec(`INSERT INTO question (content) VALUES ('to be replaced')`)
	require.NoError(t, err)

	svc := backup.NewService(target.Manager, "dev", target.Logger)
	require.NoError(t, svc.Import(context.Background(), decoded))

	reimported, err := svc.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, exported.Questions, reimported.Questions)
	assert.Equal(t, exported.Evaluations, reimported.Evaluations)
	assert.Equal(t, exported.Rubrics, reimported.Rubrics)
	assert.Equal(t, exported.Conversations, reimported.Conversations)
	assert.Equal(t, exported.Messages, reimported.Messages)
}

func TestImport_RollsBackOnFailure(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	seed(t, tdb)
	svc := backup.NewService(tdb.Manager, "dev", tdb.Logger)

	data := &backup.Data{
		Questions:     []backup.Question{},
		Evaluations:   []backup.Evaluation{{ID: 1, QuestionID: 999, Answer: "orphan", CreatedAt: "2025-01-01"}},
		Rubrics:       []backup.Rubric{},
		Conversations: []backup.Conversation{},
		Messages:      []backup.Message{},
		Metadata:      &backup.Metadata{Version: "1.0", CreatedAt: "2025-01-01T00:00:00Z"},
	}
	require.Error(t, svc.Import(context.Background(), data))

	var questions int
	require.NoError(t, tdb.Main(t).QueryRow(`SELECT COUNT(*) FROM question`).Scan(&questions))
	assert.Equal(t, 1, questions)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not json", `nope`, "invalid backup"},
		{"missing section", `{"questions":[],"evaluations":[],"rubrics":[],"conversations":[],"metadata":{"version":"1.0","created_at":"x"}}`, "missing required field: messages"},
		{"missing metadata", `{"questions":[],"evaluations":[],"rubrics":[],"conversations":[],"messages":[]}`, "missing required field: metadata"},
		{"bad metadata", `{"questions":[],"evaluations":[],"rubrics":[],"conversations":[],"messages":[],"metadata":{"version":""}}`, "invalid metadata structure"},
		{"not an array", `{"questions":{},"evaluations":[],"rubrics":[],"conversations":[],"messages":[],"metadata":{"version":"1.0","created_at":"x"}}`, "invalid backup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backup.Decode(strings.NewReader(tt.input))
			require.ErrorIs(t, err, backup.ErrInvalidBackup)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFlag_AcceptsNumbers(t *testing.T) {
	input := `{"questions":[],"evaluations":[],"conversations":[],"messages":[],
		"rubrics":[{"id":3,"name":"r","content":"c","total_score":10,"created_by":"USER","is_archived":1,"created_at":"x","archived_at":"y"}],
		"metadata":{"version":"1.0","created_at":"x"}}`
	data, err := backup.Decode(strings.NewReader(input))
	require.NoError(t, err)
	assert.True(t, bool(data.Rubrics[0].IsArchived))
}

func TestImport_ChatFailureLeavesMainUntouched(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	seed(t, tdb)
	svc := backup.NewService(tdb.Manager, "dev", tdb.Logger)

	data := &backup.Data{
		Questions:     []backup.Question{{ID: 77, Content: "Define entropy."}},
		Evaluations:   []backup.Evaluation{},
		Rubrics:       []backup.Rubric{},
		Conversations: []backup.Conversation{},
		Messages: []backup.Message{{
			ID: "m9", ConversationID: "missing", Role: "user", Content: "hi",
			Status: "complete", CreatedAt: "2025-01-01", UpdatedAt: "2025-01-01",
		}},
		Metadata: &backup.Metadata{Version: "1.0", CreatedAt: "2025-01-01T00:00:00Z"},
	}
	err := svc.Import(context.Background(), data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat")

	var ids []int64
	rows, err := tdb.Main(t).Query(`SELECT id FROM question ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int64{10}, ids)

	var evaluations, conversations int
	require.NoError(t, tdb.Main(t).QueryRow(`SELECT COUNT(*) FROM evaluation`).Scan(&evaluations))
	require.NoError(t, tdb.Chat(t).QueryRow(`SELECT COUNT(*) FROM conversation`).Scan(&conversations))
	assert.Equal(t, 1, evaluations)
	assert.Equal(t, 1, conversations)
}

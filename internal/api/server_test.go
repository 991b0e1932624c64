package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open2e/open2e/internal/backup"
	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/config"
	"github.com/open2e/open2e/internal/keycheck"
	"github.com/open2e/open2e/internal/logger"
	"github.com/open2e/open2e/internal/scheduler"
	"github.com/open2e/open2e/internal/settings"
	"github.com/open2e/open2e/internal/sqlbridge"
	"github.com/open2e/open2e/internal/sysinfo"
	"github.com/open2e/open2e/internal/testutil"
	"github.com/open2e/open2e/internal/window"
)

type memoryBackend struct {
	mu     sync.Mutex
	opened []string
}

func (b *memoryBackend) Open(_ context.Context, h *window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, h.Label)
	return nil
}

func (b *memoryBackend) Focus(context.Context, *window.Handle) error { return nil }
func (b *memoryBackend) Close(context.Context, *window.Handle) error { return nil }

type fakeOpener struct{ urls []string }

func (o *fakeOpener) OpenBrowser(u string) error {
	o.urls = append(o.urls, u)
	return nil
}

type fakeLogs struct{ entries []logger.LogEntry }

func (f fakeLogs) GetRecentLogs() []logger.LogEntry { return f.entries }
func (f fakeLogs) TailLogs(n int) []logger.LogEntry {
	if n >= len(f.entries) {
		return f.entries
	}
	return f.entries[len(f.entries)-n:]
}
func (f fakeLogs) GetLogFilePath() string { return "" }

type testServer struct {
	*Server
	dataDir  string
	windows  *window.Controller
	opener   *fakeOpener
	provider *httptest.Server
}

func openWindow(t *testing.T, c *window.Controller, cfg window.Config) {
	t.Helper()
	_, err := c.Create(context.Background(), cfg)
	require.NoError(t, err)
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	log := tdb.Logger
	dataDir := t.TempDir()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer sk-good":
			w.WriteHeader(http.StatusOK)
		case "Bearer sk-broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(provider.Close)

	store := settings.NewStore(dataDir, log)
	controller := window.NewController(&memoryBackend{}, log)
	opener := &fakeOpener{}

	cmds := commands.NewService(commands.Deps{
		Store:    store,
		Document: config.DefaultSettingsDocument,
		Windows:  controller,
		Memory: sysinfo.NewService(sysinfo.ReaderFunc(func() (uint64, error) {
			return 15*1024*1024*1024 + 400*1024*1024, nil
		}), log),
		Keys:   keycheck.New(keycheck.Config{Endpoint: provider.URL, Timeout: 2 * time.Second}, log),
		Opener: opener,
	}, log)

	sched, err := scheduler.New(log)
	require.NoError(t, err)
	require.NoError(t, sched.RegisterTask(scheduler.TaskConfig{
		ID:   "db-maintenance",
		Name: "Database Maintenance",
		Cron: "0 3 * * *",
		Func: tdb.Manager.Checkpoint,
	}))

	cfg := config.Default()
	cfg.Data.Dir = dataDir

	server := NewServer(Deps{
		Commands:  cmds,
		Store:     store,
		SQL:       sqlbridge.NewService(tdb.Manager, log),
		Backup:    backup.NewService(tdb.Manager, "test", log),
		Windows:   controller,
		Databases: tdb.Manager,
		Logs: fakeLogs{entries: []logger.LogEntry{
			{Level: "info", Message: "first"},
			{Level: "warn", Message: "second"},
		}},
		Scheduler: sched,
		Frontend: fstest.MapFS{
			"index.html":         {Data: []byte("<html>splash</html>")},
			"windows/setup.html": {Data: []byte("<html>setup</html>")},
		},
	}, cfg, log)

	return &testServer{Server: server, dataDir: dataDir, windows: controller, opener: opener, provider: provider}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestInvoke_LoadWindow(t *testing.T) {
	ts := setupTestServer(t)
	openWindow(t, ts.windows, window.IndexConfig())

	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/load_window", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[struct {
		Result window.Result `json:"result"`
	}](t, rec)
	assert.Equal(t, window.LabelSetup, resp.Result.Window.Label)
	assert.Equal(t, []string{window.LabelIndex}, resp.Result.Closed)

	// the setup flow completes and the splash page asks again
	rec = ts.do(t, http.MethodPut, "/api/v1/store/store.settings/setup", `{"value":{"is_initialized":true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/invoke/show_window", "{}")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[struct {
		Result window.Result `json:"result"`
	}](t, rec)
	assert.Equal(t, window.LabelMain, resp.Result.Window.Label)
	assert.Equal(t, []string{window.LabelSetup}, resp.Result.Closed)
}

func TestInvoke_InitializeApp(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/initialize_app", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, ok := ts.windows.Get(window.LabelMain)
	assert.True(t, ok)

	rec = ts.do(t, http.MethodGet, "/api/v1/store/store.settings/setup", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"key":"setup","value":{"is_initialized":true}}`, rec.Body.String())
}

func TestInvoke_GetTotalMemory(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/get_total_memory_gb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(16), decode[map[string]any](t, rec)["result"])
}

func TestInvoke_ValidateKey(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantResult any
		wantKind   commands.Kind
	}{
		{"accepted", `{"key":"sk-good"}`, http.StatusOK, true, ""},
		{"rejected", `{"key":"sk-bad"}`, http.StatusOK, false, ""},
		{"empty", `{}`, http.StatusOK, false, ""},
		{"provider error", `{"key":"sk-broken"}`, http.StatusBadGateway, nil, commands.KindValidation},
		{"malformed body", `{"key":`, http.StatusBadRequest, nil, commands.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/invoke/validate_key", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, rec).Kind)
				return
			}
			assert.Equal(t, tt.wantResult, decode[map[string]any](t, rec)["result"])
		})
	}
}

func TestInvoke_ValidateKeyUnreachable(t *testing.T) {
	ts := setupTestServer(t)
	ts.provider.Close()

	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/validate_key", `{"key":"sk-good"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, commands.KindValidation, decode[ErrorResponse](t, rec).Kind)
}

func TestInvoke_OpenURL(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/open_url", `{"url":"https://open2e.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://open2e.com"}, ts.opener.urls)

	rec = ts.do(t, http.MethodPost, "/api/v1/invoke/open_url", `{"url":"file:///etc/hosts"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, commands.KindInvalidArgument, decode[ErrorResponse](t, rec).Kind)
}

func TestInvoke_UnknownCommand(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/format_disk", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoke_CorruptStore(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.dataDir, "store.settings"), []byte("{"), 0o600))

	rec := ts.do(t, http.MethodPost, "/api/v1/invoke/load_window", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, commands.KindStore, decode[ErrorResponse](t, rec).Kind)
}

func TestStoreBridge(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/store/store.settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]any](t, rec))

	rec = ts.do(t, http.MethodPut, "/api/v1/store/store.settings/model", `{"value":"gpt-4o-mini"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/store/store.settings/model", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-4o-mini", decode[map[string]any](t, rec)["value"])

	rec = ts.do(t, http.MethodDelete, "/api/v1/store/store.settings/model", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/v1/store/store.settings/model", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/store/store.settings/model", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/store/store.settings", `{"language":"en","setup":{"is_initialized":false}}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/store/store.settings", "")
	assert.Equal(t, "en", decode[map[string]any](t, rec)["language"])

	rec = ts.do(t, http.MethodPut, "/api/v1/store/store.settings", `[1,2]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/store/secrets.txt", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, commands.KindInvalidArgument, decode[ErrorResponse](t, rec).Kind)
}

func TestSQLBridge(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sql/main.db/execute",
		`{"query":"INSERT INTO question (content) VALUES ($1)","values":["Define entropy."]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[sqlbridge.Result](t, rec)
	assert.Equal(t, int64(1), res.RowsAffected)

	rec = ts.do(t, http.MethodPost, "/api/v1/sql/main.db/select", `{"query":"SELECT id, content FROM question"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]map[string]any](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "Define entropy.", rows[0]["content"])

	rec = ts.do(t, http.MethodPost, "/api/v1/sql/analytics/select", `{"query":"SELECT 1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sql/main/select", `{"query":"SELECT * FROM missing_table"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, commands.KindDatabase, decode[ErrorResponse](t, rec).Kind)
}

func TestBackupEndpoints(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sql/main/execute", `{"query":"INSERT INTO question (content) VALUES ('Q1')"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/backup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "open2e-backup-")
	exported := rec.Body.Bytes()

	rec = ts.do(t, http.MethodPost, "/api/v1/sql/main/execute", `{"query":"DELETE FROM question"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/sql/main/select", `{"query":"SELECT content FROM question"}`)
	rows := decode[[]map[string]any](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "Q1", rows[0]["content"])

	rec = ts.do(t, http.MethodPost, "/api/v1/backup", `{"questions":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatus(t *testing.T) {
	ts := setupTestServer(t)
	openWindow(t, ts.windows, window.IndexConfig())

	rec := ts.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[StatusResponse](t, rec)
	assert.Equal(t, config.Version, status.Version)
	assert.Equal(t, ts.dataDir, status.DataDir)
	assert.Equal(t, map[string]int64{"main": 2, "chat": 1}, status.Databases)
	require.Len(t, status.Windows, 1)
	assert.Equal(t, window.LabelIndex, status.Windows[0].Label)
}

func TestLogs(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]logger.LogEntry](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/v1/logs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]logger.LogEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Message)

	rec = ts.do(t, http.MethodGet, "/api/v1/logs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/logs/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedulerRoutes(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/scheduler/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]scheduler.TaskInfo](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, "db-maintenance", tasks[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/v1/scheduler/tasks/db-maintenance/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		info, err := ts.scheduler.GetTask("db-maintenance")
		return err == nil && info.LastRun != nil && !info.Running
	}, 5*time.Second, 10*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/v1/scheduler/tasks/db-maintenance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[scheduler.TaskInfo](t, rec).LastError)

	rec = ts.do(t, http.MethodPost, "/api/v1/scheduler/tasks/unknown/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, commands.KindInvalidArgument, decode[ErrorResponse](t, rec).Kind)
}

func TestFrontend(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/windows/setup.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "setup")

	rec = ts.do(t, http.MethodGet, "/some/client/route", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "splash")
}

func TestMiddleware(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Host = "127.0.0.1:7410"
	req.Header.Set("Origin", "http://evil.example.com")
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Host = "127.0.0.1:7410"
	req.Header.Set("Origin", "http://localhost:7410")
	rec = httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:7410", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestListen_QueuesRequestsUntilStart(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.Listen("127.0.0.1:0"))
	addr := ts.Echo().ListenerAddr().String()

	status := make(chan int, 1)
	go func() {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + addr + "/health")
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	// give the request a head start on the server
	time.Sleep(50 * time.Millisecond)
	go func() { _ = ts.Start(addr) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ts.Shutdown(ctx)
	})

	select {
	case code := <-status:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("request was not served")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 7410, cfg.Server.Port)
	assert.Equal(t, DefaultSettingsDocument, cfg.Settings.Document)
	assert.Equal(t, DefaultValidationEndpoint, cfg.Validation.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.Validation.Timeout)
	assert.Equal(t, filepath.Join(cfg.Data.Dir, "logs"), cfg.Logging.Path)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "open2e.yaml")
	content := `
server:
  port: 9000
data:
  dir: /tmp/open2e-test
validation:
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("OPEN2E_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/open2e-test", cfg.Data.Dir)
	assert.Equal(t, filepath.Join("/tmp/open2e-test", "logs"), cfg.Logging.Path)
	assert.Equal(t, 3*time.Second, cfg.Validation.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestServerConfig_Address(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 7410}
	assert.Equal(t, "127.0.0.1:7410", s.Address())
}

func TestDataConfig_DatabasePath(t *testing.T) {
	d := DataConfig{Dir: "/data"}
	assert.Equal(t, filepath.Join("/data", "main.db"), d.DatabasePath("main"))
}

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort(20000, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 20000)
	assert.Less(t, port, 20050)
}

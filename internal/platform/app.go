// Package platform hosts the native shell around the loopback server: the
// tray icon, the system URL opener and start at login.
package platform

import (
	"os"
	"path/filepath"
)

// AppConfig configures the native shell.
type AppConfig struct {
	ServerURL string
	DataDir   string
	NoTray    bool

	// OnOpen runs when the user picks "Open Open2E" in the tray. When nil
	// the server URL is opened instead.
	OnOpen func()
	OnQuit func()
}

// App is the native event loop. Run blocks until Stop.
type App interface {
	Run() error
	OpenBrowser(url string) error
	Stop()
}

// IsFirstRun reports whether dataDir holds no main database yet.
func IsFirstRun(dataDir string) bool {
	return !fileExists(filepath.Join(dataDir, "main.db"))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// open runs the configured open action.
func open(cfg AppConfig, a App) {
	if cfg.OnOpen != nil {
		cfg.OnOpen()
		return
	}
	_ = a.OpenBrowser(cfg.ServerURL)
}

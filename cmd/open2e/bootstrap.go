package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// bootstrapLog writes early diagnostics to a file before the main logger
// exists. GUI builds on Windows and macOS have no console.
func bootstrapLog(msg string) {
	var logDir string
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			logDir = filepath.Join(localAppData, "Open2E", "logs")
		}
	case "darwin":
		if home, _ := os.UserHomeDir(); home != "" {
			logDir = filepath.Join(home, "Library", "Logs", "Open2E")
		}
	default:
		if home, _ := os.UserHomeDir(); home != "" {
			logDir = filepath.Join(home, ".config", "open2e", "logs")
		}
	}
	if logDir == "" {
		logDir = "./logs"
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return
	}

	f, err := os.OpenFile(filepath.Join(logDir, "bootstrap.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), msg)
}

package api

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/open2e/open2e/internal/config"
	"github.com/open2e/open2e/internal/logger"
	"github.com/open2e/open2e/internal/window"
)

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Version   string            `json:"version"`
	StartTime string            `json:"startTime"`
	Port      int               `json:"port"`
	DataDir   string            `json:"dataDir"`
	Windows   []*window.Handle  `json:"windows"`
	Databases map[string]int64  `json:"databases"`
	Clients   int               `json:"clients"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (s *Server) getStatus(c echo.Context) error {
	resp := StatusResponse{
		Version:   config.Version,
		StartTime: s.startTime.Format(time.RFC3339),
		Windows:   []*window.Handle{},
	}
	if s.cfg != nil {
		resp.Port = s.cfg.Server.Port
		resp.DataDir = s.cfg.Data.Dir
	}
	if s.windows != nil {
		resp.Windows = s.windows.List()
	}
	if s.hub != nil {
		resp.Clients = s.hub.ClientCount()
	}
	if s.databases != nil {
		versions, err := s.databases.Versions(c.Request().Context())
		if err != nil {
			resp.Errors = map[string]string{"databases": err.Error()}
		}
		resp.Databases = versions
	}
	return c.JSON(http.StatusOK, resp)
}

// getRecentLogs returns buffered log entries. ?limit=n keeps the newest n.
func (s *Server) getRecentLogs(c echo.Context) error {
	if s.logs == nil {
		return c.JSON(http.StatusOK, []logger.LogEntry{})
	}

	var logs []logger.LogEntry
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		logs = s.logs.TailLogs(limit)
	} else {
		logs = s.logs.GetRecentLogs()
	}

	if logs == nil {
		logs = []logger.LogEntry{}
	}
	return c.JSON(http.StatusOK, logs)
}

// downloadLogFile serves the current log file for download.
func (s *Server) downloadLogFile(c echo.Context) error {
	if s.logs == nil || s.logs.GetLogFilePath() == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}

	logPath := s.logs.GetLogFilePath()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}
	return c.Attachment(logPath, "open2e.log")
}

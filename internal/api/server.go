package api

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/open2e/open2e/internal/backup"
	"github.com/open2e/open2e/internal/commands"
	"github.com/open2e/open2e/internal/config"
	"github.com/open2e/open2e/internal/database"
	"github.com/open2e/open2e/internal/logger"
	"github.com/open2e/open2e/internal/scheduler"
	"github.com/open2e/open2e/internal/settings"
	"github.com/open2e/open2e/internal/sqlbridge"
	"github.com/open2e/open2e/internal/websocket"
	"github.com/open2e/open2e/internal/window"
)

// LogsProvider provides access to log data.
type LogsProvider interface {
	GetRecentLogs() []logger.LogEntry
	TailLogs(n int) []logger.LogEntry
	GetLogFilePath() string
}

// Deps are the services the server exposes. Logs, Scheduler and Frontend
// are optional.
type Deps struct {
	Commands  *commands.Service
	Store     *settings.Store
	SQL       *sqlbridge.Service
	Backup    *backup.Service
	Windows   *window.Controller
	Databases *database.Manager
	Hub       *websocket.Hub
	Logs      LogsProvider
	Scheduler *scheduler.Scheduler
	Frontend  fs.FS
}

// Server handles the HTTP surface the UI talks to.
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	logger    zerolog.Logger
	startTime time.Time

	commands  *commands.Service
	store     *settings.Store
	sql       *sqlbridge.Service
	backup    *backup.Service
	windows   *window.Controller
	databases *database.Manager
	hub       *websocket.Hub
	logs      LogsProvider
	scheduler *scheduler.Scheduler
}

// NewServer creates the server and registers every route.
func NewServer(deps Deps, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		cfg:       cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
		commands:  deps.Commands,
		store:     deps.Store,
		sql:       deps.SQL,
		backup:    deps.Backup,
		windows:   deps.Windows,
		databases: deps.Databases,
		hub:       deps.Hub,
		logs:      deps.Logs,
		scheduler: deps.Scheduler,
	}

	s.setupMiddleware()
	s.setupRoutes()
	if deps.Frontend != nil {
		registerFrontendHandler(e, deps.Frontend)
	}

	return s
}

// Listen binds address without serving yet. Connections made after Listen
// returns queue until Start runs.
func (s *Server) Listen(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.echo.Listener = ln
	return nil
}

// Start serves HTTP requests, on the Listen listener when there is one.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
